// Package wifi defines the radio abstraction the connectivity state
// machine drives: station join, access point hosting, scanning, and the
// asynchronous event stream the radio layer reports back on.
//
// Two backends are provided. NMCLIRadio shells out to nmcli on devices
// where NetworkManager owns the wireless interface. SimRadio is an
// in-memory radio with a configurable network table, used by the
// --simulate run mode and by tests.
//
// All radio events are delivered as values of the Event interface on a
// single channel, so consumers can switch exhaustively on the concrete
// event type instead of scattering conditionals across call sites.
package wifi
