package infra

import (
	"encoding/base64"

	"document-submitter/documents/domain"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// createDocumentRequest é o corpo aceito por /api/v3/lk/documents/create.
type createDocumentRequest struct {
	DocumentFormat  string `json:"document_format"`
	ProductDocument string `json:"product_document"`
	ProductGroup    string `json:"product_group,omitempty"`
	Signature       string `json:"signature"`
	Type            string `json:"type"`
}

// JSONSerializer codifica o documento em JSON, embrulhado em base64 dentro do
// campo product_document. Payload []byte é tratado como conteúdo já codificado.
type JSONSerializer struct{}

func (JSONSerializer) Encode(doc *domain.Document, signature string) ([]byte, error) {
	var content []byte
	switch v := doc.Payload.(type) {
	case []byte:
		content = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, domain.NewError(domain.KindSerialization, errors.WithMessage(err, "marshal document payload"))
		}
		content = b
	}

	req := createDocumentRequest{
		DocumentFormat:  orDefault(doc.Format, domain.DefaultFormat),
		ProductDocument: base64.StdEncoding.EncodeToString(content),
		ProductGroup:    doc.ProductGroup,
		Signature:       signature,
		Type:            orDefault(doc.Type, domain.DefaultType),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.NewError(domain.KindSerialization, errors.WithMessage(err, "marshal create document request"))
	}
	return body, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var _ domain.Serializer = JSONSerializer{}
