package odootest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
)

type methodCall struct {
	MethodName string    `xml:"methodName"`
	Params     []xmlParam `xml:"params>param"`
}

type xmlParam struct {
	Value xmlValue `xml:"value"`
}

type xmlValue struct {
	String  *string    `xml:"string"`
	Int     *string    `xml:"int"`
	I4      *string    `xml:"i4"`
	I8      *string    `xml:"i8"`
	Boolean *string    `xml:"boolean"`
	Double  *string    `xml:"double"`
	Base64  *string    `xml:"base64"`
	Array   *xmlArray  `xml:"array"`
	Struct  *xmlStruct `xml:"struct"`
	Text    string     `xml:",chardata"`
}

type xmlArray struct {
	Values []xmlValue `xml:"data>value"`
}

type xmlStruct struct {
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string   `xml:"name"`
	Value xmlValue `xml:"value"`
}

func decodeCall(data []byte) (string, []any, error) {
	var call methodCall
	if err := xml.Unmarshal(data, &call); err != nil {
		return "", nil, fmt.Errorf("decode methodCall: %w", err)
	}
	params := make([]any, 0, len(call.Params))
	for _, p := range call.Params {
		v, err := p.Value.decode()
		if err != nil {
			return "", nil, err
		}
		params = append(params, v)
	}
	return call.MethodName, params, nil
}

func (v xmlValue) decode() (any, error) {
	switch {
	case v.String != nil:
		return *v.String, nil
	case v.Base64 != nil:
		return *v.Base64, nil
	case v.Int != nil, v.I4 != nil, v.I8 != nil:
		raw := firstSet(v.Int, v.I4, v.I8)
		return strconv.ParseInt(raw, 10, 64)
	case v.Boolean != nil:
		return *v.Boolean == "1", nil
	case v.Double != nil:
		return strconv.ParseFloat(*v.Double, 64)
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for _, item := range v.Array.Values {
			d, err := item.decode()
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	case v.Struct != nil:
		out := make(map[string]any, len(v.Struct.Members))
		for _, m := range v.Struct.Members {
			d, err := m.Value.decode()
			if err != nil {
				return nil, err
			}
			out[m.Name] = d
		}
		return out, nil
	case v.Text == "":
		return nil, nil
	}
	return v.Text, nil
}

func firstSet(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}

func writeResult(w http.ResponseWriter, result any) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?><methodResponse><params><param>`)
	encodeValue(&buf, result)
	buf.WriteString(`</param></params></methodResponse>`)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(buf.Bytes())
}

func writeFault(w http.ResponseWriter, code int, message string) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?><methodResponse><fault>`)
	encodeValue(&buf, map[string]any{"faultCode": code, "faultString": message})
	buf.WriteString(`</fault></methodResponse>`)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(buf.Bytes())
}

// encodeValue writes v as an XML-RPC <value>. nil is written as false, the
// way Odoo marshals None.
func encodeValue(buf *bytes.Buffer, v any) {
	buf.WriteString("<value>")
	switch x := v.(type) {
	case nil:
		buf.WriteString("<boolean>0</boolean>")
	case bool:
		if x {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case int:
		fmt.Fprintf(buf, "<int>%d</int>", x)
	case int64:
		fmt.Fprintf(buf, "<int>%d</int>", x)
	case float64:
		fmt.Fprintf(buf, "<double>%s</double>", strconv.FormatFloat(x, 'f', -1, 64))
	case string:
		buf.WriteString("<string>")
		_ = xml.EscapeText(buf, []byte(x))
		buf.WriteString("</string>")
	case []any:
		buf.WriteString("<array><data>")
		for _, item := range x {
			encodeValue(buf, item)
		}
		buf.WriteString("</data></array>")
	case []int64:
		buf.WriteString("<array><data>")
		for _, item := range x {
			encodeValue(buf, item)
		}
		buf.WriteString("</data></array>")
	case []string:
		buf.WriteString("<array><data>")
		for _, item := range x {
			encodeValue(buf, item)
		}
		buf.WriteString("</data></array>")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("<struct>")
		for _, k := range keys {
			buf.WriteString("<member><name>")
			_ = xml.EscapeText(buf, []byte(k))
			buf.WriteString("</name>")
			encodeValue(buf, x[k])
			buf.WriteString("</member>")
		}
		buf.WriteString("</struct>")
	default:
		buf.WriteString("<string>")
		_ = xml.EscapeText(buf, []byte(fmt.Sprint(x)))
		buf.WriteString("</string>")
	}
	buf.WriteString("</value>")
}
