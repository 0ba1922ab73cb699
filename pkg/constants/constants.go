package constants

import "time"

const (
	// RequestIDLength size of id sent on bridge requests
	RequestIDLength = 16
	// CloseMessageCode identifier the message id for a close request
	CloseMessageCode = 1000
	// DefaultTimeout is used for joining and for the reconnect budget
	// when the configuration does not set one.
	DefaultTimeout = 45 * time.Second
	// DefaultRequestTimeout bounds a single bridge round trip.
	DefaultRequestTimeout = 30 * time.Second
	// MinHighFrequencyInterval is the smallest window a high frequency
	// custom event listener can be registered with.
	MinHighFrequencyInterval = 500 * time.Millisecond
)

var (
	WebsocketScheme       = "ws"
	SecureWebsocketScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)
