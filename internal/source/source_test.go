package source

import "testing"

func TestParseAddress(t *testing.T) {
	cases := []struct {
		addr       string
		wantKind   Kind
		wantDevice string
	}{
		{"pipewire:default", KindPipeWire, "default"},
		{"pw:alsa_input.usb-1", KindPipeWire, "alsa_input.usb-1"},
		{"pwpipe:0", KindPipeWire, "0"},
		{"alsa:hw:1,0", KindALSA, "hw:1,0"},
		{"file:/tmp/x.wav", KindFile, "/tmp/x.wav"},
		{"hw:1,0", KindALSA, "hw:1,0"},
		{"plughw:0,0", KindALSA, "plughw:0,0"},
		{"default", KindALSA, "default"},
		{"/home/user/recording.WAV", KindFile, "/home/user/recording.WAV"},
		{"track.mp3", KindFile, "track.mp3"},
		{"album.flac", KindFile, "album.flac"},
		{"side.mp4", KindFile, "side.mp4"},
		{"side.m4a", KindFile, "side.m4a"},
		{"unknown-thing", KindPipeWire, "unknown-thing"},
		{"PIPEWIRE:Default", KindPipeWire, "Default"},
	}

	for _, c := range cases {
		kind, device := ParseAddress(c.addr)
		if kind != c.wantKind {
			t.Errorf("ParseAddress(%q) kind = %v, want %v", c.addr, kind, c.wantKind)
		}
		if device != c.wantDevice {
			t.Errorf("ParseAddress(%q) device = %q, want %q", c.addr, device, c.wantDevice)
		}
	}
}
