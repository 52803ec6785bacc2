package bridge

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
	"github.com/reglet-dev/sdf-http/domain/ports"
	"golang.org/x/net/http/httpguts"
)

// Status codes outside this range are rejected.
const (
	minStatus = 100
	maxStatus = 999
)

// FromIncomingResponse assembles a net/http response from a drained host response.
// Header entries are added in the host's order with the host's grouping; body is
// attached as-is. The host carries no version, so the response reports HTTP/1.1.
func FromIncomingResponse(status uint16, entries []ports.HeaderEntry, body []byte) (*http.Response, error) {
	if status < minStatus || status > maxStatus {
		return nil, sdkerrors.NewExchangeError(sdkerrors.KindInvalidStatus,
			fmt.Errorf("status %d outside %d-%d", status, minStatus, maxStatus))
	}

	header, err := ConvertEntries(entries)
	if err != nil {
		return nil, err
	}

	code := int(status)
	return &http.Response{
		Status:        statusLine(code),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}, nil
}

// ConvertEntries registers every (key, values) pair into an http.Header. A key
// may appear more than once; its values accumulate.
func ConvertEntries(entries []ports.HeaderEntry) (http.Header, error) {
	header := make(http.Header, len(entries))
	for _, entry := range entries {
		if !httpguts.ValidHeaderFieldName(entry.Key) {
			return nil, sdkerrors.NewExchangeError(sdkerrors.KindInvalidHeader,
				&ports.HeaderError{Code: "invalid-syntax", Key: entry.Key})
		}
		for _, v := range entry.Values {
			value := string(v)
			if !httpguts.ValidHeaderFieldValue(value) {
				return nil, sdkerrors.NewExchangeError(sdkerrors.KindInvalidHeader,
					&ports.HeaderError{Code: "invalid-syntax", Key: entry.Key})
			}
			header.Add(entry.Key, value)
		}
	}
	return header, nil
}

func statusLine(code int) string {
	if text := http.StatusText(code); text != "" {
		return strconv.Itoa(code) + " " + text
	}
	return strconv.Itoa(code)
}
