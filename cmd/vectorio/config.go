package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/orb"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/tingold/vectorio"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// getStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it is a JSON object when it was set from a
// command line argument or the environment.
func getStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	switch v := cfg.Get(varName).(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		if err := json.UnmarshalFromString(v, &o); err != nil {
			return nil, fmt.Errorf("vectorio: %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("vectorio: invalid type for %s: %#v", varName, v)
	}
}

// renameFile is the layout of a rename-file.
//
//	[rename]
//	height = "h"
//	internal_id = ""
type renameFile struct {
	Rename map[string]string `toml:"rename"`
}

// renameMap merges the rename-file with the rename option. Viper lower-cases
// the keys of maps read from a config file, so case sensitive field names
// belong in a rename-file.
func renameMap(cfg *viper.Viper) (map[string]string, error) {
	rename := make(map[string]string)
	if path := cfg.GetString("rename-file"); path != "" {
		var f renameFile
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("vectorio: rename-file: %v", err)
		}
		for k, v := range f.Rename {
			rename[k] = v
		}
	}
	m, err := getStringMapString("rename", cfg)
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		rename[k] = v
	}
	return rename, nil
}

func readerOptions(location string, cfg *viper.Viper) *vectorio.ReaderOptions {
	opts := vectorio.DefaultReaderOptions()
	opts.Location = location
	opts.Format = cfg.GetString("input-format")
	opts.LayerIndex = cfg.GetInt("layer")
	opts.BaseElevation = float32(cfg.GetFloat64("base-elevation"))
	return opts
}

// writerOptions builds the output options. srs is used when no srs is
// configured.
func writerOptions(location, srs string, cfg *viper.Viper) (*vectorio.WriterOptions, error) {
	opts := vectorio.DefaultWriterOptions()
	opts.Location = location
	opts.Format = cfg.GetString("output-format")
	if name := cfg.GetString("layer-name"); name != "" {
		opts.LayerName = name
	}
	opts.SRS = srs
	if s := cfg.GetString("srs"); s != "" {
		opts.SRS = s
	}
	opts.OverwriteLayer = cfg.GetBool("overwrite-layer")
	opts.OverwriteFile = cfg.GetBool("overwrite-file")
	opts.CreateDirectories = cfg.GetBool("create-directories")
	opts.RequireAttributes = cfg.GetBool("require-attributes")
	opts.OnlyMapped = cfg.GetBool("only-mapped")
	if n := cfg.GetInt("batch-size"); n > 0 {
		opts.BatchSize = n
	}

	var err error
	if opts.Rename, err = renameMap(cfg); err != nil {
		return nil, err
	}
	if opts.LayerOptions, err = vectorio.ParseLayerOptions(cfg.GetString("layer-options")); err != nil {
		return nil, err
	}
	return opts, nil
}

// parseBBox parses "minx,miny,maxx,maxy".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("vectorio: bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("vectorio: bbox %q: %v", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("vectorio: bbox %q: minimum exceeds maximum", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
