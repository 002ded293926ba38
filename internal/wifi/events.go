package wifi

import "net"

// Event is a radio event. The concrete types below form a closed set;
// consumers switch on the type to dispatch.
type Event interface {
	radioEvent()
}

// Disconnected reports that the station link dropped or a join attempt
// failed. Reason is driver-specific text for logging only.
type Disconnected struct {
	Reason string
}

// AddressAcquired reports that the station joined the target network and
// obtained an address.
type AddressAcquired struct {
	IP   net.IP
	Link LinkInfo
}

// ClientJoined reports a client associating with the device's own
// broadcast network.
type ClientJoined struct {
	MAC string
}

// ClientLeft reports a client leaving the device's own broadcast network.
type ClientLeft struct {
	MAC string
}

func (Disconnected) radioEvent()    {}
func (AddressAcquired) radioEvent() {}
func (ClientJoined) radioEvent()    {}
func (ClientLeft) radioEvent()      {}
