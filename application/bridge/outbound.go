// Package bridge converts between net/http request/response values and the host's
// outgoing-request and incoming-response representation.
//
// Two conversions are lossy by design and kept that way for compatibility:
// header values that are not valid UTF-8 are dropped, and every scheme other than
// a case-insensitive "https" (including an absent one) becomes plain HTTP.
package bridge

import (
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
	"github.com/reglet-dev/sdf-http/domain/ports"
)

// ToOutgoingRequest builds a host outgoing request from req. The body is not
// touched; the transport driver writes it separately.
func ToOutgoingRequest(host ports.Host, req *http.Request) (ports.OutgoingRequest, error) {
	headers, err := ConvertHeaders(host, req.Header)
	if err != nil {
		return nil, err
	}

	out := host.NewOutgoingRequest(headers)
	if err := applyTarget(out, req); err != nil {
		out.Drop()
		return nil, err
	}
	return out, nil
}

func applyTarget(out ports.OutgoingRequest, req *http.Request) error {
	if err := out.SetMethod(ConvertMethod(req.Method)); err != nil {
		return sdkerrors.NewExchangeError(sdkerrors.KindInvalidMethod, err)
	}

	var scheme string
	if req.URL != nil {
		scheme = req.URL.Scheme
	}
	if err := out.SetScheme(ConvertScheme(scheme)); err != nil {
		return sdkerrors.NewExchangeError(sdkerrors.KindInvalidScheme, err)
	}

	if err := out.SetAuthority(authority(req)); err != nil {
		return sdkerrors.NewExchangeError(sdkerrors.KindInvalidAuthority, err)
	}

	if err := out.SetPathWithQuery(pathWithQuery(req)); err != nil {
		return sdkerrors.NewExchangeError(sdkerrors.KindInvalidPathQuery, err)
	}
	return nil
}

// ConvertHeaders copies header into a new host collection with one Set call per
// key. Keys are visited in sorted order and keep their case. Values that are not
// valid UTF-8 are skipped; a key left without values is not registered.
func ConvertHeaders(host ports.Host, header http.Header) (ports.Headers, error) {
	headers := host.NewHeaders()

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := make([][]byte, 0, len(header[key]))
		for _, v := range header[key] {
			if !utf8.ValidString(v) {
				continue
			}
			values = append(values, []byte(v))
		}
		if len(values) == 0 {
			continue
		}
		if err := headers.Set(key, values); err != nil {
			headers.Drop()
			return nil, sdkerrors.NewExchangeError(sdkerrors.KindInvalidHeader, err)
		}
	}
	return headers, nil
}

var standardMethods = map[string]ports.MethodKind{
	http.MethodOptions: ports.MethodOptions,
	http.MethodGet:     ports.MethodGet,
	http.MethodPost:    ports.MethodPost,
	http.MethodPut:     ports.MethodPut,
	http.MethodDelete:  ports.MethodDelete,
	http.MethodHead:    ports.MethodHead,
	http.MethodTrace:   ports.MethodTrace,
	http.MethodConnect: ports.MethodConnect,
	http.MethodPatch:   ports.MethodPatch,
}

// ConvertMethod maps a method token to the host enumerator. The match is exact and
// case-sensitive; anything else is carried verbatim as MethodOther. An empty token
// means GET, as it does for net/http.
func ConvertMethod(method string) ports.Method {
	if method == "" {
		return ports.Method{Kind: ports.MethodGet}
	}
	if kind, ok := standardMethods[method]; ok {
		return ports.Method{Kind: kind}
	}
	return ports.Method{Kind: ports.MethodOther, Other: method}
}

// ConvertScheme maps "https" in any letter case to SchemeHTTPS and everything
// else, including the empty string, to SchemeHTTP.
func ConvertScheme(scheme string) ports.Scheme {
	if strings.EqualFold(scheme, "https") {
		return ports.SchemeHTTPS
	}
	return ports.SchemeHTTP
}

// authority prefers req.Host over the URL host, as net/http does on the wire.
func authority(req *http.Request) *string {
	a := req.Host
	if a == "" && req.URL != nil {
		a = req.URL.Host
	}
	if a == "" {
		return nil
	}
	return &a
}

func pathWithQuery(req *http.Request) *string {
	u := req.URL
	if u == nil || (u.Opaque == "" && u.Path == "" && u.RawPath == "" && u.RawQuery == "" && !u.ForceQuery) {
		return nil
	}
	p := u.RequestURI()
	return &p
}
