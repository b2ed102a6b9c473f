package livestate

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// LiveStatusCode is the status value the platform uses for a room that is
// currently broadcasting.
const LiveStatusCode = 2

// Lookup is one strategy for pulling a value out of a Document.
type Lookup func(doc Document) (any, bool)

// Path returns a Lookup that walks nested objects by key.
func Path(keys ...string) Lookup {
	return func(doc Document) (any, bool) {
		var cur any = map[string]any(doc)
		for _, k := range keys {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[k]
			if !ok || cur == nil {
				return nil, false
			}
		}
		return cur, true
	}
}

// Strategy lists, tried in order; the first hit wins.
var (
	StatusLookups = []Lookup{
		Path("LiveRoom", "liveRoomUserInfo", "liveRoom", "status"),
		Path("LiveRoom", "liveRoomUserInfo", "user", "status"),
	}
	RoomIDLookups = []Lookup{
		Path("LiveRoom", "liveRoomUserInfo", "liveRoom", "roomId"),
		Path("LiveRoom", "liveRoomUserInfo", "user", "roomId"),
		Path("CurrentRoom", "roomId"),
		Path("__DEFAULT_SCOPE__", "webapp.user-detail", "userInfo", "user", "roomId"),
	}
	ManifestLookups = []Lookup{
		Path("LiveRoom", "liveRoomUserInfo", "liveRoom", "streamData", "pull_data", "stream_data"),
		Path("LiveRoom", "liveRoomUserInfo", "liveRoom", "streamData", "stream_data"),
	}
	userTableLookups = []Lookup{
		Path("UserModule", "users"),
	}
	profileUserLookups = []Lookup{
		Path("__DEFAULT_SCOPE__", "webapp.user-detail", "userInfo", "user"),
	}
)

// First runs lookups in order and returns the first value found.
func First(doc Document, lookups []Lookup) (any, bool) {
	if doc == nil {
		return nil, false
	}
	for _, l := range lookups {
		if v, ok := l(doc); ok {
			return v, true
		}
	}
	return nil, false
}

// Status holds the live fields recovered from a live page.
type Status struct {
	Code   *int
	RoomID *string
}

// IsLive reports whether the resolved code is the live sentinel. An absent
// code is never live.
func (s Status) IsLive() bool {
	return s.Code != nil && *s.Code == LiveStatusCode
}

// ResolveStatus recovers the status code and room id. Fields not found are nil.
func ResolveStatus(doc Document) Status {
	var st Status
	if v, ok := First(doc, StatusLookups); ok {
		if n, ok := asInt(v); ok {
			st.Code = &n
		}
	}
	if v, ok := First(doc, RoomIDLookups); ok {
		if s, ok := asString(v); ok {
			st.RoomID = &s
		}
	}
	return st
}

// UserInfo holds the identity fields recovered from a profile page.
type UserInfo struct {
	UserID *string
	Region *string
}

// ResolveUserInfo finds the account's entry in the page's user table. It
// tries the exact key, then the "@"-prefixed key, then scans entries for a
// matching uniqueId (case-insensitive). Pages that carry a single profile
// user instead of a table are checked last.
func ResolveUserInfo(doc Document, account string) UserInfo {
	if user, ok := findUser(doc, account); ok {
		return userInfoFrom(user)
	}
	if v, ok := First(doc, profileUserLookups); ok {
		if user, ok := v.(map[string]any); ok && uniqueIDMatches(user, account) {
			return userInfoFrom(user)
		}
	}
	return UserInfo{}
}

func findUser(doc Document, account string) (map[string]any, bool) {
	v, ok := First(doc, userTableLookups)
	if !ok {
		return nil, false
	}
	table, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range []string{account, "@" + account} {
		if user, ok := table[key].(map[string]any); ok {
			return user, true
		}
	}
	// Sorted so that the winner is stable when several entries match.
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		user, ok := table[k].(map[string]any)
		if ok && uniqueIDMatches(user, account) {
			return user, true
		}
	}
	return nil, false
}

func uniqueIDMatches(user map[string]any, account string) bool {
	id, ok := user["uniqueId"].(string)
	return ok && strings.EqualFold(id, account)
}

func userInfoFrom(user map[string]any) UserInfo {
	var info UserInfo
	if s, ok := asString(user["id"]); ok {
		info.UserID = &s
	}
	if s, ok := asString(user["region"]); ok {
		info.Region = &s
	}
	return info
}

// ResolveStreamManifestRaw returns the nested manifest document, which the
// page stores as a JSON string inside the state blob.
func ResolveStreamManifestRaw(doc Document) (string, bool) {
	v, ok := First(doc, ManifestLookups)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", false
		}
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	}
	return "", false
}
