// Package syncbranch keeps a target branch in sync with a source branch via
// pull requests.
//
// After a push to the source branch, a sync branch named
// <target>-sync-<source>-<last 6 chars of the commit sha> is created from the
// pushed commit and a pull request from the sync branch into the target branch
// is opened.
// The name of the sync branch only depends on the target branch, source
// branch and commit. Running the synchronization repeatedly for the same
// commit finds the existing branch and pull request and creates neither of
// them again.
//
// Components
//
// The BranchEnsurer creates the sync branch when it does not exist.
//
// The PullRequestReconciler searches all open pull requests for one from the
// sync branch into the target branch and creates it when none is found.
//
// The Syncer runs both in sequence, writes the pull request URL and number as
// step outputs and sends a success or failure notification.
package syncbranch
