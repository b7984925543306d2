package subtitles

import "fmt"

// Options selects the look of a subtitle file.
type Options struct {
	// AspectRatio of the clip the file will be burned into: 9:16, 16:9, 1:1
	// or original (treated as 16:9).
	AspectRatio string
	// Template names a preset from Templates. Empty means "tiktok".
	Template string
}

type style struct {
	resX, resY int
	font       string
	fontSize   int
	primary    string
	karaoke    string
	bold       bool
	outline    int
	marginV    int
	lineChars  int
	lineWords  int
}

var templates = map[string]style{
	"tiktok":  {font: "Inter", fontSize: 78, primary: "&H00FFFFFF", karaoke: "&H00FFD200", bold: true, outline: 6, lineChars: 42, lineWords: 9},
	"minimal": {font: "Inter", fontSize: 56, primary: "&H00FFFFFF", karaoke: "&H00FFFFFF", outline: 3, lineChars: 48, lineWords: 10},
	"bold":    {font: "Impact", fontSize: 92, primary: "&H0000FFFF", karaoke: "&H00FFFFFF", bold: true, outline: 8, lineChars: 24, lineWords: 5},
}

// Templates lists the preset names Render accepts.
func Templates() []string { return []string{"bold", "minimal", "tiktok"} }

func (o Options) style() (style, error) {
	name := o.Template
	if name == "" {
		name = "tiktok"
	}
	st, ok := templates[name]
	if !ok {
		return style{}, fmt.Errorf("subtitles: unknown template %q", name)
	}
	switch o.AspectRatio {
	case "9:16":
		st.resX, st.resY = 1080, 1920
		// Vertical frames sit captions above the platform UI at the bottom.
		st.marginV = 320
		st.lineChars = min(st.lineChars, 28)
	case "1:1":
		st.resX, st.resY = 1080, 1080
		st.marginV = 120
		st.lineChars = min(st.lineChars, 32)
	case "", "16:9", "original":
		st.resX, st.resY = 1920, 1080
		st.marginV = 85
	default:
		return style{}, fmt.Errorf("subtitles: unsupported aspect ratio %q", o.AspectRatio)
	}
	return st, nil
}
