package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"plycloud/internal/logging"
	"plycloud/pkg/cloud"
	"plycloud/pkg/loader"
)

const defaultPrecision = 0.08

var errInvalidLabel = errors.New("invalid label, want cx cy cz length width height yaw")

// Request names a .ply or .ply.gz file and the boxes to count points in.
type Request struct {
	PLYFile   string
	Precision float32
	Labels    [][]float32
}

type Result struct {
	Error      string `json:",omitempty"`
	Points     int
	Area       float32
	LabelCount []int
}

// Serve answers one JSON request per JSON value read from r until r is
// exhausted. Failures are reported in Result.Error and do not stop the loop.
func Serve(r io.Reader, w io.Writer) error {
	decoder := json.NewDecoder(r)
	encoder := json.NewEncoder(w)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// the stream is no longer aligned on a value
			return encoder.Encode(Result{Error: err.Error()})
		}
		res, err := handle(req)
		if err != nil {
			log.Debug().Err(err).Str("file", req.PLYFile).Msg("request failed")
			res = Result{Error: err.Error()}
		}
		if err := encoder.Encode(res); err != nil {
			return err
		}
	}
}

func handle(req Request) (Result, error) {
	boxes := make([]cloud.Box, 0, len(req.Labels))
	for _, l := range req.Labels {
		if len(l) != 7 {
			return Result{}, errInvalidLabel
		}
		boxes = append(boxes, cloud.Box{CX: l[0], CY: l[1], CZ: l[2], Length: l[3], Width: l[4], Height: l[5], Yaw: l[6]})
	}
	p, err := loader.Open(req.PLYFile)
	if err != nil {
		return Result{}, err
	}
	c, err := cloud.FromPly(p)
	if err != nil {
		return Result{}, err
	}
	precision := req.Precision
	if precision <= 0 {
		precision = defaultPrecision
	}
	res := Result{Points: c.Len(), Area: c.XYArea(precision), LabelCount: []int{}}
	for _, b := range boxes {
		res.LabelCount = append(res.LabelCount, c.CountInBox(b))
	}
	return res, nil
}

func main() {
	logging.ConfigureRuntime()
	if err := Serve(os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("plymeta failed")
		os.Exit(1)
	}
}
