package syncbranch

import (
	"github.com/simplesurance/syncbranches/internal/logfields"
)

var (
	logEventBranchExists  = logfields.Event("sync_branch_exists")
	logEventBranchCreated = logfields.Event("sync_branch_created")

	logEventPullRequestExists  = logfields.Event("pull_request_exists")
	logEventPullRequestCreated = logfields.Event("pull_request_created")

	logEventNotificationFailed = logfields.Event("notification_failed")
	logEventSyncFailed         = logfields.Event("sync_failed")
)
