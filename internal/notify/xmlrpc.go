package notify

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// XMLRPCNotifier calls start_job(kind, url) on the backend daemon.
type XMLRPCNotifier struct {
	endpoint string
	client   *http.Client
}

// NewXMLRPCNotifier creates a notifier for the daemon listening at endpoint.
func NewXMLRPCNotifier(endpoint string, timeout time.Duration) *XMLRPCNotifier {
	return &XMLRPCNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *XMLRPCNotifier) StartJob(ctx context.Context, kind, callbackURL string) error {
	body, err := encodeCall("start_job", kind, callbackURL)
	if err != nil {
		return fmt.Errorf("encoding start_job call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := n.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading start_job response: %w", err)
	}
	return decodeFault(raw)
}

// --- XML-RPC wire types ---

type methodCall struct {
	XMLName    xml.Name   `xml:"methodCall"`
	MethodName string     `xml:"methodName"`
	Params     []rpcParam `xml:"params>param"`
}

type rpcParam struct {
	Value rpcValue `xml:"value"`
}

type rpcValue struct {
	String   string `xml:"string,omitempty"`
	Int      string `xml:"int,omitempty"`
	I4       string `xml:"i4,omitempty"`
	Chardata string `xml:",chardata"`
}

func (v rpcValue) text() string {
	switch {
	case v.String != "":
		return v.String
	case v.Int != "":
		return v.Int
	case v.I4 != "":
		return v.I4
	default:
		return strings.TrimSpace(v.Chardata)
	}
}

type methodResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Fault   *struct {
		Members []struct {
			Name  string   `xml:"name"`
			Value rpcValue `xml:"value"`
		} `xml:"value>struct>member"`
	} `xml:"fault"`
}

func encodeCall(method string, args ...string) ([]byte, error) {
	call := methodCall{MethodName: method}
	for _, a := range args {
		call.Params = append(call.Params, rpcParam{Value: rpcValue{String: a}})
	}
	out, err := xml.Marshal(call)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// decodeFault returns ErrRejected carrying the fault string if the response
// is an XML-RPC fault.
func decodeFault(raw []byte) error {
	var resp methodResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrRejected, err)
	}
	if resp.Fault == nil {
		return nil
	}
	var code, msg string
	for _, m := range resp.Fault.Members {
		switch m.Name {
		case "faultCode":
			code = m.Value.text()
		case "faultString":
			msg = m.Value.text()
		}
	}
	return fmt.Errorf("%w: fault %s: %s", ErrRejected, code, msg)
}

var _ Notifier = (*XMLRPCNotifier)(nil)
