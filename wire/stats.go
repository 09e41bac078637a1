package wire

// Stats receives byte and message accounting from Send and Receive.
// Implementations must be safe for concurrent use; one Stats is typically shared by
// every connection of a server or client.
type Stats interface {
	IncSentBytes(n int)
	IncReceivedBytes(n int)

	// IncMessagesBeingReceived is called once a header has been read; the matching
	// DecMessagesBeingReceived is called by Clear with the same byte count.
	IncMessagesBeingReceived(bytes int)
	DecMessagesBeingReceived(bytes int)

	// IncConnectionsTimedOut counts receives that gave up waiting on the flow gate.
	IncConnectionsTimedOut()
}

type nopStats struct{}

func (nopStats) IncSentBytes(int)             {}
func (nopStats) IncReceivedBytes(int)         {}
func (nopStats) IncMessagesBeingReceived(int) {}
func (nopStats) DecMessagesBeingReceived(int) {}
func (nopStats) IncConnectionsTimedOut()      {}
