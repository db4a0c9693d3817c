package player

// Sink receives encoded opus frames. Implemented by voice.Conn.
type Sink interface {
	Speaking(on bool) error
	OpusSend() chan<- []byte
	Ready() bool
}
