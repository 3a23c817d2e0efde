package control

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/goccy/go-json"
)

const dialTimeout = 2 * time.Second

// Call sends one request to the daemon's control socket and decodes the
// single-line reply into resp.
func Call(socket string, req Request, resp any) error {
	conn, err := net.DialTimeout("unix", socket, dialTimeout)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return fmt.Errorf("read reply: %w", err)
	}
	return json.Unmarshal(line, resp)
}

// CallSimple is Call for ops that answer with a SimpleResponse; a negative
// reply becomes an error.
func CallSimple(socket string, req Request) (string, error) {
	var resp SimpleResponse
	if err := Call(socket, req, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("%s failed: %s", req.Op, resp.Message)
	}
	return resp.Message, nil
}
