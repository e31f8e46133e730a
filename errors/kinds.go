package errors

// Kind names a class of failure that callers must be able to tell apart.
// The string value is what crosses the wire in RunResult.error_kind.
type Kind string

const (
	KindNone                    Kind = ""
	KindTemplateNotFound        Kind = "TemplateNotFound"
	KindDatasetNotFound         Kind = "DatasetNotFound"
	KindInvalidRowIndex         Kind = "InvalidRowIndex"
	KindTemplateRenderError     Kind = "TemplateRenderError"
	KindSchemaCompileError      Kind = "SchemaCompileError"
	KindStructuredPredictError  Kind = "StructuredPredictError"
	KindInvalidTransformCode    Kind = "InvalidTransformCode"
	KindTransformExecutionError Kind = "TransformExecutionError"
	KindJobNotFound             Kind = "JobNotFound"
	KindJobNotComplete          Kind = "JobNotComplete"
	KindNameCollision           Kind = "NameCollision"
	KindStorageIOError          Kind = "StorageIOError"
	KindInvalidInput            Kind = "InvalidInput"
	KindModelError              Kind = "ModelError"
	KindUnknown                 Kind = "Unknown"
)

// Sentinels, one per kind. Create errors of a kind by wrapping the sentinel:
//
//	errors.Wrapf(errors.ErrDatasetNotFound, "dataset %s", id)
//
// or by marking a foreign error:
//
//	errors.Mark(errors.Wrap(err, "read dataset"), errors.ErrStorageIO)
var (
	ErrTemplateNotFound     = New("template not found")
	ErrDatasetNotFound      = New("dataset not found")
	ErrInvalidRowIndex      = New("invalid row index")
	ErrTemplateRender       = New("template render failed")
	ErrSchemaCompile        = New("schema compile failed")
	ErrStructuredPredict    = New("structured prediction failed")
	ErrInvalidTransformCode = New("invalid transform code")
	ErrTransformExecution   = New("transform execution failed")
	ErrJobNotFound          = New("job not found")
	ErrJobNotComplete       = New("job is not yet complete")
	ErrNameCollision        = New("name already exists")
	ErrStorageIO            = New("storage I/O error")
	ErrInvalidInput         = New("invalid input")
	ErrModel                = New("model call failed")
)

// kindOrder is checked first to last; the first matching sentinel wins.
// Specific kinds come before the generic StorageIO and Model kinds so that a
// render error raised while reading storage is still reported as a render error.
var kindOrder = []struct {
	kind     Kind
	sentinel error
}{
	{KindTemplateNotFound, ErrTemplateNotFound},
	{KindDatasetNotFound, ErrDatasetNotFound},
	{KindInvalidRowIndex, ErrInvalidRowIndex},
	{KindTemplateRenderError, ErrTemplateRender},
	{KindSchemaCompileError, ErrSchemaCompile},
	{KindStructuredPredictError, ErrStructuredPredict},
	{KindInvalidTransformCode, ErrInvalidTransformCode},
	{KindTransformExecutionError, ErrTransformExecution},
	{KindJobNotFound, ErrJobNotFound},
	{KindJobNotComplete, ErrJobNotComplete},
	{KindNameCollision, ErrNameCollision},
	{KindInvalidInput, ErrInvalidInput},
	{KindStorageIOError, ErrStorageIO},
	{KindModelError, ErrModel},
}

// KindOf classifies err. It returns KindNone for nil and KindUnknown for
// errors that carry no kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindOrder {
		if Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// StorageIO marks err as a StorageIOError with context. Returns nil for nil.
func StorageIO(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrStorageIO)
}

// SentinelFor returns the sentinel of kind, or nil for kinds without one.
// Clients use it to rebuild classified errors from a wire kind.
func SentinelFor(kind Kind) error {
	for _, k := range kindOrder {
		if k.kind == kind {
			return k.sentinel
		}
	}
	return nil
}
