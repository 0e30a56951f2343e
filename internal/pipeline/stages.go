package pipeline

import (
	"bytes"
	"context"

	"github.com/tjfontaine/appointment-gateway/internal/domain"
)

// Stage names, used in failures, logs and metrics.
const (
	StageInput     = "input"
	StageExtract   = "extract"
	StageEntities  = "entities"
	StageNormalize = "normalize"
	StageFinalize  = "finalize"
	StageSchedule  = "schedule"
)

// Processing service endpoints.
const (
	PathExtractText  = "/step1/extract-text"
	PathExtractImage = "/step1/extract-text-from-image"
	PathEntities     = "/step2/extract-entities"
	PathNormalize    = "/step3/normalize-datetime"
	PathFinalize     = "/step4/final-appointment"
	PathSchedule     = "/scheduler/schedule"
)

// Caller is the part of the backend client the pipeline needs.
type Caller interface {
	CallJSON(ctx context.Context, stage, path string, payload any) (domain.StageResult, error)
	CallRaw(ctx context.Context, stage, path string, body []byte) (domain.StageResult, error)
	CallUpload(ctx context.Context, stage, path string, u *domain.Upload) (domain.StageResult, error)
}

// finalizeInput composes the finalize request from the normalize and entities
// results without decoding either of them.
func finalizeInput(normalized, entities domain.StageResult) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"normalized":`)
	writeRaw(&buf, normalized)
	buf.WriteString(`,"entities":`)
	writeRaw(&buf, entities)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeRaw(buf *bytes.Buffer, v domain.StageResult) {
	if len(bytes.TrimSpace(v)) == 0 {
		buf.WriteString("null")
		return
	}
	buf.Write(v)
}

// passthrough returns the body forwarded to the next stage for a result;
// an empty result is sent as JSON null.
func passthrough(v domain.StageResult) []byte {
	if len(bytes.TrimSpace(v)) == 0 {
		return []byte("null")
	}
	return v
}
