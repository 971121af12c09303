package gpucore

// PropertyID is an integer handle for a named kernel bind point.
//
// Names are resolved once through [PropertyToID]; hot paths pass the integer
// handle around instead of comparing strings.
type PropertyID int32

// InvalidProperty is returned by PropertyToID for unknown names.
const InvalidProperty PropertyID = 0

// Bind point names shared by the EASU and RCAS kernels.
const (
	NameInputTexture       = "InputTexture"
	NameOutputTexture      = "OutputTexture"
	NameEASUViewportSize   = "_EASUViewportSize"
	NameEASUInputImageSize = "_EASUInputImageSize"
	NameEASUOutputSize     = "_EASUOutputSize"
	NameEASUParameters     = "_EASUParameters"
	NameRCASScale          = "_RCASScale"
	NameRCASParameters     = "_RCASParameters"
)

// propertyNames is the process-wide table. It is filled during package
// initialization and never written afterwards, so lookups need no locking.
var propertyNames = []string{
	"", // InvalidProperty
	NameInputTexture,
	NameOutputTexture,
	NameEASUViewportSize,
	NameEASUInputImageSize,
	NameEASUOutputSize,
	NameEASUParameters,
	NameRCASScale,
	NameRCASParameters,
}

var propertyIDs = buildPropertyIDs(propertyNames)

func buildPropertyIDs(names []string) map[string]PropertyID {
	ids := make(map[string]PropertyID, len(names))
	for i, name := range names {
		if i == 0 {
			continue
		}
		ids[name] = PropertyID(i)
	}
	return ids
}

// Resolved bind point handles.
var (
	PropInputTexture       = PropertyToID(NameInputTexture)
	PropOutputTexture      = PropertyToID(NameOutputTexture)
	PropEASUViewportSize   = PropertyToID(NameEASUViewportSize)
	PropEASUInputImageSize = PropertyToID(NameEASUInputImageSize)
	PropEASUOutputSize     = PropertyToID(NameEASUOutputSize)
	PropEASUParameters     = PropertyToID(NameEASUParameters)
	PropRCASScale          = PropertyToID(NameRCASScale)
	PropRCASParameters     = PropertyToID(NameRCASParameters)
)

// PropertyToID resolves a bind point name to its handle.
// Unknown names return [InvalidProperty].
func PropertyToID(name string) PropertyID {
	return propertyIDs[name]
}

// Name returns the bind point name, or "" for unknown handles.
func (p PropertyID) Name() string {
	if p <= 0 || int(p) >= len(propertyNames) {
		return ""
	}
	return propertyNames[p]
}

// String returns the bind point name, or "invalid" for unknown handles.
func (p PropertyID) String() string {
	if name := p.Name(); name != "" {
		return name
	}
	return "invalid"
}
