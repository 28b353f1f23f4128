package lockfile

// Shared lock-resource names. A task's snapshot and event log are guarded by
// one resource so a writer holds both under a single lock.

// TaskResource names the lock guarding one task's snapshot and event log.
func TaskResource(taskID string) string { return "tasks/" + taskID }

// LifecycleResource guards the global lifecycle index.
const LifecycleResource = "lifecycle.jsonl"
