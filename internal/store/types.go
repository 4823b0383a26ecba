package store

// TaskObservation is one robot task row as seen by a poll.
type TaskObservation struct {
	LogID       int64
	TaskName    string
	PiStatus    string
	UnityStatus string
	Message     string
}

// TaskTransition names a task that reached a terminal status during an update.
type TaskTransition struct {
	LogID       int64
	TaskName    string
	PiStatus    string
	UnityStatus string
}
