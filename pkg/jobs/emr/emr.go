// Package emr runs SQL as spark-submit steps on an EMR cluster.
package emr

import (
	"context"
	"flag"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/emr"
	"github.com/aws/aws-sdk-go/service/emr/emriface"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/util/awsutil"
)

const (
	// ResultField is the results index field holding the step id.
	ResultField = "stepId.keyword"

	stepName = "Spark Application Step"
	jar      = "command-runner.jar"
)

// Config configures the EMR backend.
type Config struct {
	ClusterID string           `yaml:"cluster_id"`
	AWS       awsutil.Config   `yaml:"aws"`
	Spark     jobs.SparkConfig `yaml:"spark"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.ClusterID, prefix+"emr.cluster-id", "", "EMR cluster running the steps.")
	cfg.AWS.RegisterFlagsWithPrefix(prefix+"emr.", f)
	cfg.Spark.RegisterFlagsWithPrefix(prefix+"emr.", f)
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.ClusterID == "" {
		return errors.New("emr cluster id is required")
	}
	if err := cfg.AWS.Validate(); err != nil {
		return err
	}
	return cfg.Spark.Validate()
}

var states = map[string]querymodel.JobState{
	emr.StepStatePending:       querymodel.JobSubmitted,
	emr.StepStateRunning:       querymodel.JobRunning,
	emr.StepStateCancelPending: querymodel.JobRunning,
	emr.StepStateCompleted:     querymodel.JobSuccess,
	emr.StepStateFailed:        querymodel.JobFailed,
	emr.StepStateInterrupted:   querymodel.JobFailed,
	emr.StepStateCancelled:     querymodel.JobCancelled,
}

// Backend implements jobs.Backend on EMR steps.
type Backend struct {
	cfg Config
	api emriface.EMRAPI
}

// New builds an EMR client from cfg.
func New(cfg Config) (*Backend, error) {
	sess, err := awsutil.NewSession(cfg.AWS, nil)
	if err != nil {
		return nil, err
	}
	return NewWithAPI(cfg, emr.New(sess)), nil
}

// NewWithAPI returns a Backend using api.
func NewWithAPI(cfg Config, api emriface.EMRAPI) *Backend {
	return &Backend{cfg: cfg, api: api}
}

// Args returns the command-runner arguments submitting query.
func (b *Backend) Args(query string) []string {
	args := []string{"spark-submit", "--class", b.cfg.Spark.Driver()}
	if jars := b.cfg.Spark.Jars(); len(jars) > 0 {
		args = append(args, "--jars", strings.Join(jars, ","))
	}
	args = append(args, b.cfg.Spark.ApplicationJar, query)
	return append(args, b.cfg.Spark.SinkArgs()...)
}

func (b *Backend) Submit(ctx context.Context, query string) (jobs.Submission, error) {
	out, err := b.api.AddJobFlowStepsWithContext(ctx, &emr.AddJobFlowStepsInput{
		JobFlowId: aws.String(b.cfg.ClusterID),
		Steps: []*emr.StepConfig{{
			Name:            aws.String(stepName),
			ActionOnFailure: aws.String(emr.ActionOnFailureContinue),
			HadoopJarStep: &emr.HadoopJarStepConfig{
				Jar:  aws.String(jar),
				Args: aws.StringSlice(b.Args(query)),
			},
		}},
	})
	if err != nil {
		return jobs.Submission{}, errors.Wrap(err, "adding job flow step")
	}
	if len(out.StepIds) == 0 {
		return jobs.Submission{}, errors.New("no step id returned")
	}
	id := aws.StringValue(out.StepIds[0])
	return jobs.Submission{ID: id, ResultKey: id}, nil
}

func (b *Backend) Poll(ctx context.Context, id string) (jobs.Status, error) {
	out, err := b.api.DescribeStepWithContext(ctx, &emr.DescribeStepInput{
		ClusterId: aws.String(b.cfg.ClusterID),
		StepId:    aws.String(id),
	})
	if err != nil {
		return jobs.Status{}, errors.Wrapf(err, "describing step %s", id)
	}
	if out.Step == nil || out.Step.Status == nil {
		return jobs.Status{}, errors.Errorf("step %s has no status", id)
	}
	raw := aws.StringValue(out.Step.Status.State)
	state, ok := states[raw]
	if !ok {
		return jobs.Status{}, errors.Errorf("unknown step state %q", raw)
	}

	var reason string
	if fd := out.Step.Status.FailureDetails; fd != nil {
		reason = aws.StringValue(fd.Message)
	} else if scr := out.Step.Status.StateChangeReason; scr != nil {
		reason = aws.StringValue(scr.Message)
	}
	return jobs.Status{State: state, Reason: reason}, nil
}

func (b *Backend) Cancel(ctx context.Context, id string) error {
	out, err := b.api.CancelStepsWithContext(ctx, &emr.CancelStepsInput{
		ClusterId: aws.String(b.cfg.ClusterID),
		StepIds:   aws.StringSlice([]string{id}),
	})
	if err != nil {
		return errors.Wrapf(err, "cancelling step %s", id)
	}
	for _, info := range out.CancelStepsInfoList {
		if aws.StringValue(info.Status) == emr.CancelStepsRequestStatusFailed {
			return errors.Errorf("cancelling step %s: %s", id, aws.StringValue(info.Reason))
		}
	}
	return nil
}
