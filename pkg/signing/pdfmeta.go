package signing

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Info dictionary keys written by Embed.
const (
	keyReportID  = "ReportID"
	keySignature = "Signature"
	keyTimestamp = "Timestamp"
	keyAlgorithm = "Algorithm"
	keySigned    = "Signed"
	keyVersion   = "Version"
)

var signingKeys = []string{keyReportID, keySignature, keyTimestamp, keyAlgorithm, keySigned, keyVersion}

var (
	startxrefPattern = regexp.MustCompile(`startxref\s+(\d+)\s+%%EOF`)
	sizePattern      = regexp.MustCompile(`/Size\s+(\d+)`)
	rootPattern      = regexp.MustCompile(`/Root\s+(\d+\s+\d+\s+R)`)
	infoPattern      = regexp.MustCompile(`/Info\s+(\d+)\s+(\d+)\s+R`)
	idPattern        = regexp.MustCompile(`/ID\s*\[[^\]]*\]`)
	subsectionHeader = regexp.MustCompile(`^(\d+)\s+(\d+)$`)
	xrefEntry        = regexp.MustCompile(`^(\d{10})\s+(\d{5})\s+([nf])$`)
	objectHeader     = regexp.MustCompile(`^\d+\s+\d+\s+obj`)
)

type trailer struct {
	size      int
	root      string
	infoObj   int
	hasInfo   bool
	id        string
	startxref int
	// offsets of in-use objects listed in the last xref section
	offsets map[int]int
}

// Embed appends a PDF incremental update to doc whose Info dictionary
// carries the signing metadata. doc must be a complete PDF with a classic
// xref table ending in an end-of-line; its bytes are left untouched and
// form the signed content.
func Embed(doc []byte, reportID, signature, timestamp, algorithm string) (SignedDocument, error) {
	if len(doc) == 0 || (doc[len(doc)-1] != '\n' && doc[len(doc)-1] != '\r') {
		return SignedDocument{}, errors.New("embed: document must end with an end-of-line")
	}
	tr, err := parseTrailer(doc)
	if err != nil {
		return SignedDocument{}, fmt.Errorf("embed: %w", err)
	}

	meta := map[string]string{
		keyReportID:  reportID,
		keySignature: signature,
		keyTimestamp: timestamp,
		keyAlgorithm: algorithm,
		keySigned:    "true",
		keyVersion:   Version,
	}

	// Keep Title, Author and friends from the previous Info dictionary.
	var inherited string
	if tr.hasInfo {
		if off, ok := tr.offsets[tr.infoObj]; ok {
			if body, err := dictAt(doc, off); err == nil {
				inherited = stripKeys(body, signingKeys)
			}
		} else if body, err := findObjectDict(doc, tr.infoObj); err == nil {
			inherited = stripKeys(body, signingKeys)
		}
	}

	objNum := tr.size
	offset := len(doc)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d 0 obj\n<<", objNum)
	if inherited != "" {
		buf.WriteString(inherited)
		buf.WriteByte('\n')
	}
	for _, k := range signingKeys {
		fmt.Fprintf(&buf, "/%s %s\n", k, pdfString(meta[k]))
	}
	buf.WriteString(">>\nendobj\n")

	xrefOffset := offset + buf.Len()
	fmt.Fprintf(&buf, "xref\n%d 1\n%010d 00000 n \n", objNum, offset)
	fmt.Fprintf(&buf, "trailer\n<<\n/Size %d\n/Root %s\n/Info %d 0 R\n/Prev %d\n", objNum+1, tr.root, objNum, tr.startxref)
	if tr.id != "" {
		buf.WriteString(tr.id + "\n")
	}
	fmt.Fprintf(&buf, ">>\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	out := make([]byte, 0, len(doc)+buf.Len())
	out = append(out, doc...)
	out = append(out, buf.Bytes()...)

	return SignedDocument{
		ReportID:  reportID,
		Content:   doc,
		Signature: signature,
		Timestamp: timestamp,
		Algorithm: algorithm,
		Metadata:  meta,
		Bytes:     out,
	}, nil
}

// ReadMetadata returns the signing metadata of data without checking the
// signature.
func ReadMetadata(data []byte) (map[string]string, error) {
	meta, _, err := extract(data)
	return meta, err
}

// extract returns the signing metadata from the last update and the length
// of the content it covers.
func extract(data []byte) (map[string]string, int, error) {
	tr, err := parseTrailer(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotSigned, err)
	}
	if !tr.hasInfo {
		return nil, 0, ErrNotSigned
	}
	off, ok := tr.offsets[tr.infoObj]
	if !ok {
		return nil, 0, ErrNotSigned
	}
	body, err := dictAt(data, off)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotSigned, err)
	}
	meta := parseStrings(body)
	if meta[keySigned] != "true" || meta[keySignature] == "" {
		return nil, 0, ErrNotSigned
	}
	return meta, off, nil
}

func parseTrailer(data []byte) (trailer, error) {
	var tr trailer
	matches := startxrefPattern.FindAllSubmatchIndex(data, -1)
	if len(matches) == 0 {
		return tr, errors.New("no startxref found")
	}
	last := matches[len(matches)-1]
	start, err := strconv.Atoi(string(data[last[2]:last[3]]))
	if err != nil || start <= 0 || start >= last[0] {
		return tr, errors.New("invalid startxref offset")
	}
	tr.startxref = start

	section := data[start:last[0]]
	if !bytes.HasPrefix(section, []byte("xref")) {
		return tr, errors.New("cross-reference streams are not supported")
	}
	ti := bytes.Index(section, []byte("trailer"))
	if ti < 0 {
		return tr, errors.New("no trailer found")
	}

	tr.offsets = make(map[int]int)
	lines := strings.FieldsFunc(string(section[len("xref"):ti]), func(r rune) bool { return r == '\n' || r == '\r' })
	obj := -1
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := subsectionHeader.FindStringSubmatch(line); m != nil {
			obj, _ = strconv.Atoi(m[1])
			continue
		}
		m := xrefEntry.FindStringSubmatch(line)
		if m == nil || obj < 0 {
			return tr, fmt.Errorf("malformed xref entry %q", line)
		}
		if m[3] == "n" {
			off, _ := strconv.Atoi(m[1])
			tr.offsets[obj] = off
		}
		obj++
	}

	dict := section[ti:]
	m := sizePattern.FindSubmatch(dict)
	if m == nil {
		return tr, errors.New("trailer has no /Size")
	}
	tr.size, _ = strconv.Atoi(string(m[1]))
	r := rootPattern.FindSubmatch(dict)
	if r == nil {
		return tr, errors.New("trailer has no /Root")
	}
	tr.root = string(r[1])
	if i := infoPattern.FindSubmatch(dict); i != nil {
		tr.infoObj, _ = strconv.Atoi(string(i[1]))
		tr.hasInfo = true
	}
	if id := idPattern.Find(dict); id != nil {
		tr.id = string(id)
	}
	return tr, nil
}

// dictAt returns the body of the dictionary of the object starting at off.
func dictAt(data []byte, off int) (string, error) {
	if off < 0 || off >= len(data) {
		return "", errors.New("object offset out of range")
	}
	rest := data[off:]
	if !objectHeader.Match(rest) {
		return "", errors.New("no object at offset")
	}
	open := bytes.Index(rest, []byte("<<"))
	if open < 0 {
		return "", errors.New("object has no dictionary")
	}
	end, err := matchDict(rest, open)
	if err != nil {
		return "", err
	}
	return string(rest[open+2 : end]), nil
}

func findObjectDict(data []byte, obj int) (string, error) {
	marker := []byte(fmt.Sprintf("\n%d 0 obj", obj))
	i := bytes.LastIndex(data, marker)
	if i < 0 {
		return "", fmt.Errorf("object %d not found", obj)
	}
	return dictAt(data, i+1)
}

// matchDict returns the index of the ">>" closing the dictionary opened at
// open, skipping literal strings.
func matchDict(b []byte, open int) (int, error) {
	depth := 0
	for i := open; i < len(b)-1; i++ {
		switch b[i] {
		case '(':
			j, err := skipString(b, i)
			if err != nil {
				return 0, err
			}
			i = j
		case '<':
			if b[i+1] == '<' {
				depth++
				i++
			}
		case '>':
			if b[i+1] == '>' {
				depth--
				if depth == 0 {
					return i, nil
				}
				i++
			}
		}
	}
	return 0, errors.New("unterminated dictionary")
}

// skipString returns the index of the ')' closing the literal at i.
func skipString(b []byte, i int) (int, error) {
	depth := 0
	for ; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, errors.New("unterminated string")
}

var stringEntry = regexp.MustCompile(`/([A-Za-z0-9_.\-]+)\s*\(`)

// parseStrings extracts the literal-string entries of a dictionary body.
func parseStrings(body string) map[string]string {
	out := make(map[string]string)
	b := []byte(body)
	for _, loc := range stringEntry.FindAllSubmatchIndex(b, -1) {
		open := loc[1] - 1
		end, err := skipString(b, open)
		if err != nil {
			continue
		}
		out[string(b[loc[2]:loc[3]])] = unescape(b[open+1 : end])
	}
	return out
}

// stripKeys removes the given string-valued entries from a dictionary body.
func stripKeys(body string, keys []string) string {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	b := []byte(body)
	var spans [][2]int
	for _, loc := range stringEntry.FindAllSubmatchIndex(b, -1) {
		if !drop[string(b[loc[2]:loc[3]])] {
			continue
		}
		end, err := skipString(b, loc[1]-1)
		if err != nil {
			continue
		}
		spans = append(spans, [2]int{loc[0], end + 1})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] > spans[j][0] })
	for _, s := range spans {
		b = append(b[:s[0]], b[s[1]:]...)
	}
	return strings.TrimSpace(string(b))
}

func pdfString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)
	return "(" + r.Replace(s) + ")"
}

func unescape(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			sb.WriteByte(b[i])
			continue
		}
		i++
		switch b[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		default:
			sb.WriteByte(b[i])
		}
	}
	return sb.String()
}

func withTrailingEOL(doc []byte) []byte {
	if len(doc) > 0 && (doc[len(doc)-1] == '\n' || doc[len(doc)-1] == '\r') {
		return doc
	}
	out := make([]byte, 0, len(doc)+1)
	out = append(out, doc...)
	return append(out, '\n')
}
