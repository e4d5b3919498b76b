package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformedPayload is wrapped by every Decode validation failure.
var ErrMalformedPayload = errors.New("malformed payload")

// PayloadError points at the first invalid element of a payload.
type PayloadError struct {
	Path   string
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMalformedPayload, e.Path, e.Reason)
}

func (e *PayloadError) Unwrap() error { return ErrMalformedPayload }

// Wire shapes. Pointers distinguish "missing" from "empty".
type rawPayload struct {
	Data *[]rawEntry `json:"data"`
}

type rawEntry struct {
	SchedulesInvolved *[]rawSchedule   `json:"schedules_involved"`
	Occurrences       *[]rawOccurrence `json:"occurrences"`
}

type rawSchedule struct {
	ID   json.RawMessage `json:"id"`
	Type *string         `json:"type"`
}

type rawOccurrence struct {
	ID         json.RawMessage `json:"id"`
	Time       *string         `json:"time"`
	SourceID   json.RawMessage `json:"source_id"`
	SourceTime *string         `json:"source_time"`
}

// Decode parses and validates a JSON payload.
//
// Required: a "data" array; per entry, "schedules_involved" and "occurrences"
// arrays; per schedule, "id" and "type"; per occurrence, "id" and "time".
// source_id / source_time are optional (null or absent decode to "").
func Decode(data []byte) (Payload, error) {
	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Data == nil {
		return Payload{}, &PayloadError{Path: "data", Reason: "missing array"}
	}

	out := Payload{Data: make([]Entry, 0, len(*raw.Data))}
	for i, re := range *raw.Data {
		path := fmt.Sprintf("data[%d]", i)
		if re.SchedulesInvolved == nil {
			return Payload{}, &PayloadError{Path: path + ".schedules_involved", Reason: "missing array"}
		}
		if re.Occurrences == nil {
			return Payload{}, &PayloadError{Path: path + ".occurrences", Reason: "missing array"}
		}

		entry := Entry{
			SchedulesInvolved: make([]ScheduleRef, 0, len(*re.SchedulesInvolved)),
			Occurrences:       make([]Occurrence, 0, len(*re.Occurrences)),
		}

		for j, rs := range *re.SchedulesInvolved {
			spath := fmt.Sprintf("%s.schedules_involved[%d]", path, j)
			id, ok, err := scalarID(rs.ID)
			if err != nil {
				return Payload{}, &PayloadError{Path: spath + ".id", Reason: err.Error()}
			}
			if !ok {
				return Payload{}, &PayloadError{Path: spath + ".id", Reason: "missing"}
			}
			if rs.Type == nil {
				return Payload{}, &PayloadError{Path: spath + ".type", Reason: "missing"}
			}
			entry.SchedulesInvolved = append(entry.SchedulesInvolved, ScheduleRef{ID: id, Type: *rs.Type})
		}

		for j, ro := range *re.Occurrences {
			opath := fmt.Sprintf("%s.occurrences[%d]", path, j)
			id, ok, err := scalarID(ro.ID)
			if err != nil {
				return Payload{}, &PayloadError{Path: opath + ".id", Reason: err.Error()}
			}
			if !ok {
				return Payload{}, &PayloadError{Path: opath + ".id", Reason: "missing"}
			}
			if ro.Time == nil {
				return Payload{}, &PayloadError{Path: opath + ".time", Reason: "missing"}
			}
			srcID, _, err := scalarID(ro.SourceID)
			if err != nil {
				return Payload{}, &PayloadError{Path: opath + ".source_id", Reason: err.Error()}
			}
			occ := Occurrence{ID: id, Time: *ro.Time, SourceID: srcID}
			if ro.SourceTime != nil {
				occ.SourceTime = *ro.SourceTime
			}
			entry.Occurrences = append(entry.Occurrences, occ)
		}

		out.Data = append(out.Data, entry)
	}
	return out, nil
}

// scalarID returns the text of a JSON string or number. ok is false for an
// absent or null value.
func scalarID(raw json.RawMessage) (ScheduleID, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return ScheduleID(s), true, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false, err
		}
		return ScheduleID(canonicalNumber(n.String())), true, nil
	default:
		return "", false, errors.New("must be a string or number")
	}
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// canonicalNumber spells equal numeric ids the same way: 1, 1.0 and 1e0 all
// become "1". Integers beyond float64 precision keep their literal text.
func canonicalNumber(lit string) string {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsInf(f, 0) {
		return lit
	}
	if f == math.Trunc(f) {
		if math.Abs(f) > maxExactInt {
			return lit
		}
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
