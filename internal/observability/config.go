package observability

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	// EnablePprof mounts net/http/pprof handlers on the diagnostics mux.
	EnablePprof bool
}
