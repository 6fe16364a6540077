package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
	"gopkg.in/yaml.v3"
)

type tableFile struct {
	Rules []ruleFile `yaml:"rules"`
}

type ruleFile struct {
	Kind     Kind         `yaml:"kind"`
	Pipeline string       `yaml:"pipeline"`
	Match    string       `yaml:"match"`
	Dissect  *dissectFile `yaml:"dissect"`
	Set      *setFile     `yaml:"set"`
}

type dissectFile struct {
	Field         string `yaml:"field"`
	Pattern       string `yaml:"pattern"`
	IgnoreMissing *bool  `yaml:"ignore_missing"`
	IgnoreFailure *bool  `yaml:"ignore_failure"`
}

type setFile struct {
	Field         string `yaml:"field"`
	CopyFrom      string `yaml:"copy_from"`
	IgnoreFailure *bool  `yaml:"ignore_failure"`
}

// orTrue defaults an omitted flag to true, so installed pipelines never fail a document.
func orTrue(b *bool) bool {
	return b == nil || *b
}

// LoadTable reads a YAML rule table:
//
//	rules:
//	  - kind: log
//	    pipeline: logs-aws.cloudwatch_logs@custom
//	    dissect:
//	      field: awscloudwatch.log_group
//	      pattern: "/aws/lambda/%{service.name}"
//	  - kind: metric
//	    pipeline: metrics-aws.lambda@custom
//	    set:
//	      field: service.name
//	      copy_from: aws.dimensions.FunctionName
//
// When match is omitted the rule matches on its processor source field.
// ignore_missing and ignore_failure default to true.
func LoadTable(r io.Reader) (Table, error) {
	var f tableFile
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("could not load rule table: empty document")
		}

		return nil, fmt.Errorf("could not decode rule table: %w", err)
	}

	table := make(Table, 0, len(f.Rules))
	for i, rf := range f.Rules {
		rule, err := rf.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		table = append(table, rule)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	return table, nil
}

// LoadTableFile reads a YAML rule table from the file.
func LoadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open rule table: %w", err)
	}
	defer f.Close()

	return LoadTable(f)
}

func (rf ruleFile) rule() (Rule, error) {
	var proc Processor
	switch {
	case rf.Dissect != nil && rf.Set != nil:
		return Rule{}, errors.New("rule must have exactly one of dissect or set processors")
	case rf.Dissect != nil:
		if rf.Dissect.Field == "" {
			return Rule{}, errors.New("dissect processor has no field")
		}
		p, err := ParseDissectPattern(rf.Dissect.Pattern)
		if err != nil {
			return Rule{}, err
		}
		proc = Dissect{
			Field:         record.ParseField(rf.Dissect.Field),
			Pattern:       p,
			IgnoreMissing: orTrue(rf.Dissect.IgnoreMissing),
			IgnoreFailure: orTrue(rf.Dissect.IgnoreFailure),
		}
	case rf.Set != nil:
		if rf.Set.Field == "" || rf.Set.CopyFrom == "" {
			return Rule{}, errors.New("set processor needs field and copy_from")
		}
		proc = Copy{
			From:          record.ParseField(rf.Set.CopyFrom),
			To:            record.ParseField(rf.Set.Field),
			IgnoreFailure: orTrue(rf.Set.IgnoreFailure),
		}
	default:
		return Rule{}, errors.New("rule has no processor")
	}

	match := record.ParseField(rf.Match)
	if match == nil {
		match = proc.Source()
	}

	return Rule{Kind: rf.Kind, Pipeline: rf.Pipeline, Match: match, Processor: proc}, nil
}
