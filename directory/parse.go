package directory

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrNoServers = errors.New("directory document has no servers array")

// Parse decodes a directory document. Individual malformed entries are
// skipped or have the offending field left unset; only a document that is not
// JSON or lacks a "servers" array is an error.
func Parse(body []byte) ([]Entry, error) {
	var doc struct {
		Servers *[]json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc.Servers == nil {
		return nil, ErrNoServers
	}

	entries := make([]Entry, 0, len(*doc.Servers))
	for i, raw := range *doc.Servers {
		entry, ok := parseEntry(raw)
		if !ok {
			log.Debug().Int("index", i).Msg("directory: skipping non-object server entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(raw json.RawMessage) (Entry, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Entry{}, false
	}

	var e Entry
	_, e.Error = fields["error"]
	e.JoinableState = stringField(fields, "joinable_state")
	e.GameType = stringField(fields, "gametype")
	if name := stringField(fields, "server_name"); name != nil {
		e.Name = *name
	}
	if v, ok := fields["players"]; ok {
		var players []json.RawMessage
		if err := json.Unmarshal(v, &players); err == nil && players != nil {
			n := len(players)
			e.Players = &n
		}
	}
	if v, ok := fields["address"]; ok {
		e.Address = parseAddress(v)
	}
	return e, true
}

func stringField(fields map[string]json.RawMessage, key string) *string {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	return &s
}

// parseAddress accepts ["host", port] where port is a JSON number or a
// numeric string.
func parseAddress(raw json.RawMessage) *Address {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) < 2 {
		return nil
	}
	var host string
	if err := json.Unmarshal(parts[0], &host); err != nil {
		return nil
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return nil
	}

	port, ok := parsePort(parts[1])
	if !ok {
		return nil
	}
	return &Address{Host: host, Port: port}
}

func parsePort(raw json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	}
	port, err := strconv.Atoi(n.String())
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}
