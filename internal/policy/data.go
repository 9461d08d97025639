package policy

// AssetType is the closed classification of downloadable page resources.
// The zero value AssetNone means "not an asset by URL".
type AssetType string

const (
	AssetNone  AssetType = ""
	AssetImage AssetType = "image"
	AssetCSS   AssetType = "css"
	AssetJS    AssetType = "js"
	AssetFont  AssetType = "font"
	AssetMedia AssetType = "media"
	AssetOther AssetType = "other"
)

// Subdir returns the run-relative directory assets of this type land in.
func (t AssetType) Subdir() string {
	switch t {
	case AssetImage:
		return "images"
	case AssetCSS:
		return "css"
	case AssetJS:
		return "js"
	case AssetFont:
		return "fonts"
	case AssetMedia:
		return "media"
	default:
		return "assets"
	}
}

// DefaultExtension is used when the URL path carries no usable extension.
func (t AssetType) DefaultExtension() string {
	switch t {
	case AssetImage:
		return ".jpg"
	case AssetCSS:
		return ".css"
	case AssetJS:
		return ".js"
	default:
		return ".bin"
	}
}

// IsText reports whether stored bytes are decoded and written as UTF-8
// text rather than raw bytes.
func (t AssetType) IsText() bool {
	return t == AssetCSS || t == AssetJS
}
