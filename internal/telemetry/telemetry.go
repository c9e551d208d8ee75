// Package telemetry decodes the inbound display-only topics: IMU state,
// camera metadata, lidar scan summaries, and GPS sentences. These feed status
// output only; a malformed payload is skipped, never fatal.
package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Vec3 is a three-axis reading, typically angular velocity.
type Vec3 struct {
	X, Y, Z float64
}

// CameraMeta is the metadata published alongside camera frames. Fields beyond
// these are tolerated and ignored.
type CameraMeta struct {
	Width  int     `json:"w"`
	Height int     `json:"h"`
	FPS    float64 `json:"fps"`
	TsMS   int64   `json:"ts_ms"`
}

// ScanSummary is the point-cloud digest published by the lidar container.
type ScanSummary struct {
	Points  int     `json:"points"`
	MinDist float64 `json:"min_dist"`
	TsMS    int64   `json:"ts_ms"`
}

// DecodeCameraMeta parses a camera/meta payload.
func DecodeCameraMeta(payload []byte) (CameraMeta, error) {
	var m CameraMeta
	if err := json.Unmarshal(payload, &m); err != nil {
		return CameraMeta{}, fmt.Errorf("camera meta decode: %w", err)
	}
	return m, nil
}

// DecodeScanSummary parses a lidar/summary payload.
func DecodeScanSummary(payload []byte) (ScanSummary, error) {
	var s ScanSummary
	if err := json.Unmarshal(payload, &s); err != nil {
		return ScanSummary{}, fmt.Errorf("scan summary decode: %w", err)
	}
	return s, nil
}

// GPSFix is the subset of an RMC sentence shown on the console.
type GPSFix struct {
	Latitude   float64
	Longitude  float64
	SpeedKnots float64
	CourseDeg  float64
	Valid      bool
}

// DecodeGPS parses a raw NMEA sentence from the gps/nmea topic. Sentences
// other than RMC return ok=false without error; garbage returns an error the
// caller should log and drop.
func DecodeGPS(line string) (GPSFix, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return GPSFix{}, false, nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return GPSFix{}, false, fmt.Errorf("nmea parse: %w", err)
	}
	rmc, ok := sentence.(nmea.RMC)
	if !ok {
		return GPSFix{}, false, nil
	}
	return GPSFix{
		Latitude:   rmc.Latitude,
		Longitude:  rmc.Longitude,
		SpeedKnots: rmc.Speed,
		CourseDeg:  rmc.Course,
		Valid:      rmc.Validity == nmea.ValidRMC,
	}, true, nil
}

// ExtractVec3 pulls a three-axis vector out of a decoded JSON payload at a
// dotted field path ("" means the payload itself). The field may be an
// {x,y,z}-style object (gx/gy/gz and wx/wy/wz spellings accepted) or a
// numeric array of at least three elements.
func ExtractVec3(payload any, path string) (Vec3, bool) {
	cur := payload
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			switch node := cur.(type) {
			case map[string]any:
				cur = node[part]
			case []any:
				idx, err := strconv.Atoi(part)
				if err != nil || idx < 0 || idx >= len(node) {
					return Vec3{}, false
				}
				cur = node[idx]
			default:
				return Vec3{}, false
			}
		}
	}
	return vec3From(cur)
}

func vec3From(candidate any) (Vec3, bool) {
	switch node := candidate.(type) {
	case map[string]any:
		for _, keys := range [][3]string{{"x", "y", "z"}, {"gx", "gy", "gz"}, {"wx", "wy", "wz"}} {
			x, okX := asFloat(node[keys[0]])
			y, okY := asFloat(node[keys[1]])
			z, okZ := asFloat(node[keys[2]])
			if okX && okY && okZ {
				return Vec3{x, y, z}, true
			}
		}
	case []any:
		if len(node) >= 3 {
			x, okX := asFloat(node[0])
			y, okY := asFloat(node[1])
			z, okZ := asFloat(node[2])
			if okX && okY && okZ {
				return Vec3{x, y, z}, true
			}
		}
	}
	return Vec3{}, false
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// gyroPaths are tried first before the breadth-first search.
var gyroPaths = []string{"gyro", "gyr", "angular_velocity", "angularVelocity"}

// AutodetectVec3 finds a gyro-like vector in an arbitrary IMU payload: the
// well-known field names first, then a bounded breadth-first walk of the
// structure. Returns the path it found the vector at.
func AutodetectVec3(payload any) (string, Vec3, bool) {
	for _, path := range gyroPaths {
		if v, ok := ExtractVec3(payload, path); ok {
			return path, v, true
		}
	}

	type node struct {
		path string
		val  any
	}
	queue := []node{{"", payload}}
	budget := 500

	for len(queue) > 0 && budget > 0 {
		budget--
		n := queue[0]
		queue = queue[1:]

		if v, ok := vec3From(n.val); ok {
			path := n.path
			if path == "" {
				path = "<root>"
			}
			return path, v, true
		}

		join := func(base, key string) string {
			if base == "" {
				return key
			}
			return base + "." + key
		}
		switch val := n.val.(type) {
		case map[string]any:
			for k, v := range val {
				queue = append(queue, node{join(n.path, k), v})
			}
		case []any:
			for i, v := range val {
				if i >= 10 {
					break
				}
				queue = append(queue, node{join(n.path, strconv.Itoa(i)), v})
			}
		}
	}
	return "", Vec3{}, false
}

// DecodeIMU unmarshals an imu/state payload into the generic form the vector
// extractors work on.
func DecodeIMU(payload []byte) (any, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("imu decode: %w", err)
	}
	return v, nil
}
