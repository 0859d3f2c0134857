package syncbranch

import (
	"fmt"
	"strings"
)

const branchRefPrefix = "refs/heads/"

// shaSuffixLen is the number of trailing characters of the commit sha that
// are part of a sync branch name.
const shaSuffixLen = 6

// ShortBranchName returns ref without the refs/heads/ prefix.
// If ref does not have the prefix it is returned unchanged.
func ShortBranchName(ref string) string {
	return strings.TrimPrefix(ref, branchRefPrefix)
}

// SyncBranchName returns the name of the branch that is used to sync
// targetBranch with the commit commitSHA of sourceRef.
func SyncBranchName(targetBranch, sourceRef, commitSHA string) string {
	sha := commitSHA
	if len(sha) > shaSuffixLen {
		sha = sha[len(sha)-shaSuffixLen:]
	}

	return fmt.Sprintf("%s-sync-%s-%s", targetBranch, ShortBranchName(sourceRef), sha)
}
