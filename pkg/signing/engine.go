package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	Namespace = "MemHawk-Forensics"
	Algorithm = "HMAC-SHA256"
	Version   = "1.0.0"
)

// ErrNotSigned is reported for documents without signing metadata.
var ErrNotSigned = errors.New("document is not signed")

// SignedDocument is a PDF with signing metadata appended.
type SignedDocument struct {
	ReportID  string
	Content   []byte
	Signature string
	Timestamp string
	Algorithm string
	Metadata  map[string]string
	Bytes     []byte
}

// Verification is the outcome of checking a document.
type Verification struct {
	IsSigned       bool   `json:"isSigned"`
	ReportID       string `json:"reportId,omitempty"`
	Signature      string `json:"signature,omitempty"`
	SignatureValid bool   `json:"signatureValid"`
	Timestamp      string `json:"timestamp,omitempty"`
	Algorithm      string `json:"algorithm,omitempty"`
	Version        string `json:"version,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Engine signs and verifies report documents with one key.
type Engine struct {
	key Key
	ids *IDGenerator
}

func NewEngine(key Key) (*Engine, error) {
	if !key.valid() {
		return nil, errors.New("signing key is not initialized")
	}
	return &Engine{key: key, ids: NewIDGenerator()}, nil
}

func (e *Engine) Key() Key { return e.key }

// FormatTimestamp renders t the way it is signed and embedded.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Sign returns the hex HMAC-SHA256 of content|timestamp|reportID|namespace.
func (e *Engine) Sign(content []byte, reportID, timestamp string) string {
	msg := make([]byte, 0, len(content)+len(timestamp)+len(reportID)+len(Namespace)+3)
	msg = append(msg, content...)
	msg = append(msg, '|')
	msg = append(msg, timestamp...)
	msg = append(msg, '|')
	msg = append(msg, reportID...)
	msg = append(msg, '|')
	msg = append(msg, Namespace...)
	return hex.EncodeToString(hmacSum(e.key.secret, msg))
}

func hmacSum(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// NextReportID issues a new report id.
func (e *Engine) NextReportID() string {
	return e.ids.Next()
}

// SignDocument issues a report id, signs doc and embeds the metadata. Each
// call produces a new id, including for documents that are already signed.
func (e *Engine) SignDocument(doc []byte, now time.Time) (SignedDocument, error) {
	return e.SignDocumentAs(doc, e.NextReportID(), now)
}

// SignDocumentAs signs doc under an id obtained earlier from NextReportID,
// for callers that print the id inside the document.
func (e *Engine) SignDocumentAs(doc []byte, id string, now time.Time) (SignedDocument, error) {
	if id == "" {
		return SignedDocument{}, errors.New("report id is required")
	}
	content := withTrailingEOL(doc)
	ts := FormatTimestamp(now)
	sig := e.Sign(content, id, ts)
	return Embed(content, id, sig, ts, Algorithm)
}

// Verify checks the metadata of the last signing update in data against
// this engine's key.
func (e *Engine) Verify(data []byte) Verification {
	meta, contentLen, err := extract(data)
	if err != nil {
		return Verification{Error: err.Error()}
	}
	v := Verification{
		IsSigned:  true,
		ReportID:  meta[keyReportID],
		Signature: meta[keySignature],
		Timestamp: meta[keyTimestamp],
		Algorithm: meta[keyAlgorithm],
		Version:   meta[keyVersion],
	}
	if v.Algorithm != Algorithm {
		v.Error = fmt.Sprintf("unsupported algorithm %q", v.Algorithm)
		return v
	}
	expected := e.Sign(data[:contentLen], v.ReportID, v.Timestamp)
	v.SignatureValid = subtle.ConstantTimeCompare([]byte(expected), []byte(v.Signature)) == 1
	if !v.SignatureValid {
		v.Error = "signature mismatch: document modified or signed with a different key"
	}
	return v
}
