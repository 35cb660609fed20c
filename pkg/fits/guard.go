package fits

// HduMoveGuard moves a cursor for the duration of a scope and moves it back on
// Close. Use it with defer:
//
//	g, err := fits.NewHduMoveGuard(f, 0, false)
//	if err != nil {
//		return err
//	}
//	defer g.Close()
type HduMoveGuard struct {
	f        *Fits
	previous int
	enabled  bool
}

// NewHduMoveGuard records the current HDU and moves to hdu.
func NewHduMoveGuard(f *Fits, hdu int, relative bool) (*HduMoveGuard, error) {
	g := &HduMoveGuard{f: f, previous: f.CurrentHDU(), enabled: true}
	if err := f.SetHDU(hdu, relative); err != nil {
		return nil, err
	}
	return g, nil
}

// Disable keeps the cursor where the scope left it.
func (g *HduMoveGuard) Disable() { g.enabled = false }

// Close restores the recorded HDU. Failures are logged, never returned, and any
// sticky status from the scope is preserved.
func (g *HduMoveGuard) Close() {
	if g == nil || !g.enabled {
		return
	}
	g.enabled = false
	f := g.f
	if !f.IsOpen() {
		return
	}
	if g.previous < 0 || g.previous >= len(f.hdus) {
		f.log.Warn("could not restore HDU position", "file", f.name, "hdu", g.previous)
		return
	}
	// a direct move cannot fail and does not touch the sticky status
	f.current = g.previous
}

// compressionGuard installs compression options for a scope.
type compressionGuard struct {
	f        *Fits
	previous ImageCompressionOptions
}

func newCompressionGuard(f *Fits, o ImageCompressionOptions) (*compressionGuard, error) {
	g := &compressionGuard{f: f, previous: f.ImageCompression()}
	if err := f.SetImageCompression(o); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *compressionGuard) Close() {
	if err := g.f.SetImageCompression(g.previous); err != nil {
		g.f.log.Warn("could not restore image compression", "file", g.f.name, "err", err)
	}
}
