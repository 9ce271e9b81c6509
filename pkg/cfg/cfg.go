package cfg

import (
	"flag"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/grafana/sqlbridge/pkg/util/flagext"
)

// Registerer is implemented by every configuration struct.
type Registerer interface {
	RegisterFlags(*flag.FlagSet)
}

// Validator is implemented by configuration structs that can check
// themselves after all sources were applied.
type Validator interface {
	Validate() error
}

// Source is a generic configuration source. It is passed the destination,
// which may already contain data from previous sources.
type Source func(Registerer) error

// Unmarshal applies the sources to dst in order.
func Unmarshal(dst Registerer, sources ...Source) error {
	if len(sources) == 0 {
		panic("No sources supplied to cfg.Unmarshal(). This is most likely a programming issue and should never happen. Check the code!")
	}
	for _, source := range sources {
		if err := source(dst); err != nil {
			return errors.Wrap(err, "sourcing")
		}
	}
	return nil
}

// Defaults registers dst's flags on fs, which fills in their default values.
func Defaults(fs *flag.FlagSet) Source {
	return func(dst Registerer) error {
		dst.RegisterFlags(fs)
		return nil
	}
}

// YAML decodes buf strictly into dst. Unknown keys are an error.
func YAML(buf []byte, expandEnv bool) Source {
	return func(dst Registerer) error {
		if expandEnv {
			buf = []byte(os.ExpandEnv(string(buf)))
		}
		return yaml.UnmarshalStrict(buf, dst)
	}
}

// YAMLFiles decodes each file of files into dst. The slice is read when the
// source runs, so it may be populated by an earlier flag parse.
func YAMLFiles(files *flagext.ConfigFiles, expandEnv *bool) Source {
	return func(dst Registerer) error {
		for _, f := range *files {
			buf, err := os.ReadFile(f)
			if err != nil {
				return errors.Wrap(err, "Error reading config file")
			}
			if err := YAML(buf, *expandEnv)(dst); err != nil {
				return errors.Wrapf(err, "Error parsing config file %s", f)
			}
		}
		return nil
	}
}

// Flags parses args with fs.
func Flags(fs *flag.FlagSet, args []string) Source {
	return func(Registerer) error {
		return fs.Parse(args)
	}
}

// Parse loads dst from flag defaults, then from the YAML files named by
// -config.file, then from the command line flags again so that explicitly set
// flags win over the file. dst is validated when it implements Validator.
func Parse(fs *flag.FlagSet, args []string, dst Registerer) error {
	var (
		files     flagext.ConfigFiles
		expandEnv bool
	)
	fs.Var(&files, "config.file", "YAML file to load. May be given more than once.")
	fs.BoolVar(&expandEnv, "config.expand-env", false, "Expands ${var} or $var in the config file according to the values of the environment variables.")

	// The first parse only discovers the config files. Values set there are
	// overwritten by the files and restored by the final parse.
	err := Unmarshal(dst,
		Defaults(fs),
		Flags(fs, args),
	)
	if err != nil {
		return err
	}
	loaded := append(flagext.ConfigFiles(nil), files...)

	err = Unmarshal(dst,
		YAMLFiles(&loaded, &expandEnv),
		Flags(fs, args),
	)
	if err != nil {
		return err
	}

	if v, ok := dst.(Validator); ok {
		return errors.Wrap(v.Validate(), "invalid configuration")
	}
	return nil
}
