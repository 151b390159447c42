package capture

// OutputCallback matches the shape of the host debugger's text-output
// callback: a function invoked with whatever text the engine would have
// printed.
type OutputCallback func(text string)

// CallbackHost is the narrow seam a real (DbgEng-backed) debugger adapter
// exposes so a Sink can be installed as its output callback. The simulated
// adapter does not need this — it calls Sink.Append directly — but a
// cgo-backed adapter wires its native IDebugOutputCallbacks through exactly
// this interface.
type CallbackHost interface {
	GetOutputCallback() OutputCallback
	SetOutputCallback(cb OutputCallback)
}

// InstallScoped acquires host's previous callback, installs sink as the new
// one, and returns a restore func that puts the previous callback back.
// restore is safe to call multiple times; only the first call has effect.
// Running restore via defer covers the error path too, since there is
// nothing else to release.
func InstallScoped(host CallbackHost, sink *Sink) (restore func()) {
	previous := host.GetOutputCallback()
	host.SetOutputCallback(sink.Append)

	done := false
	return func() {
		if done {
			return
		}
		done = true
		host.SetOutputCallback(previous)
	}
}
