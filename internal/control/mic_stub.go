//go:build !whisper

package control

import "fmt"

func listMics() ([]micInfo, error) {
	return nil, fmt.Errorf("build with '-tags whisper' to enable microphone listing (PortAudio required)")
}
