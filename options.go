package fsr

import "github.com/gogpu/gputypes"

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := fsr.New(dev,
//	    fsr.WithSettings(fsr.QualitySettings(fsr.Balanced)),
//	    fsr.WithSourceFormat(gputypes.TextureFormatRGBA16Float),
//	)
type Option func(*options)

// options holds optional configuration for Pipeline creation.
type options struct {
	settings   Settings
	format     gputypes.TextureFormat
	alwaysInit bool
}

// defaultOptions returns the default pipeline options.
func defaultOptions() options {
	return options{
		settings: DefaultSettings(),
		format:   gputypes.TextureFormatRGBA8Unorm,
	}
}

// WithSettings sets the initial settings. They are clamped.
func WithSettings(s Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithSourceFormat sets the color format of the scene render and the
// intermediate targets for frames that do not set Frame.Format.
// The default is RGBA8Unorm.
func WithSourceFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		if f != gputypes.TextureFormatUndefined {
			o.format = f
		}
	}
}

// WithAlwaysInit runs the EASU and RCAS init kernels every frame instead
// of only when their inputs change. This costs two small dispatches per
// frame.
func WithAlwaysInit(always bool) Option {
	return func(o *options) {
		o.alwaysInit = always
	}
}
