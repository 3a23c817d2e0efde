package control

import "time"

// Request is one line on the control socket.
type Request struct {
	Op   string `json:"op"`
	Text string `json:"text,omitempty"`
}

type Status struct {
	Running   bool      `json:"running"`
	UptimeSec float64   `json:"uptime_sec"`
	Engine    string    `json:"engine"`
	State     string    `json:"state"`
	Status    string    `json:"status"`
	Enabled   bool      `json:"enabled"`
	Backend   string    `json:"backend"`
	Server    string    `json:"server,omitempty"`
	Commands  []Command `json:"commands"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Command is one recognized phrase and what became of it.
type Command struct {
	Session   string    `json:"session"`
	Text      string    `json:"text"`
	Outcome   string    `json:"outcome,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
