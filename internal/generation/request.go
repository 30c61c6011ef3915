package generation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"adminpanel/internal/domain"
	"adminpanel/internal/domain/jsoncfg"
)

//go:embed generate_request.schema.json
var generateRequestSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

// Request is a validated generation request.
type Request struct {
	CharacterID  string
	Prompt       jsoncfg.Prompt
	ReferenceIDs []string
	AspectRatio  string
	Resolution   string
	OutputFormat string
}

type requestBody struct {
	CharacterID  string          `json:"character_id"`
	Prompt       json.RawMessage `json:"prompt"`
	ReferenceIDs []string        `json:"selected_reference_image_ids"`
	AspectRatio  string          `json:"aspect_ratio"`
	Resolution   string          `json:"resolution"`
	OutputFormat string          `json:"output_format"`
}

// DecodeRequest validates a POST generate body against the request schema and
// decodes the prompt into its tagged form.
func DecodeRequest(raw []byte) (Request, error) {
	if err := validateBody(raw); err != nil {
		return Request{}, err
	}
	var body requestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Request{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	prompt, err := jsoncfg.DecodePrompt(body.Prompt)
	if err != nil {
		return Request{}, err
	}
	return Request{
		CharacterID:  strings.TrimSpace(body.CharacterID),
		Prompt:       prompt,
		ReferenceIDs: body.ReferenceIDs,
		AspectRatio:  strings.TrimSpace(body.AspectRatio),
		Resolution:   strings.TrimSpace(body.Resolution),
		OutputFormat: strings.TrimSpace(body.OutputFormat),
	}, nil
}

func validateBody(raw []byte) error {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(generateRequestSchema))
	})
	if schemaErr != nil {
		return fmt.Errorf("%w: request schema: %v", domain.ErrInvalidConfiguration, schemaErr)
	}
	res, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidInput)
	}
	if !res.Valid() {
		var msgs []string
		for i, e := range res.Errors() {
			if i >= 5 {
				break
			}
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
	}
	return nil
}
