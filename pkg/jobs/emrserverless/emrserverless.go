// Package emrserverless runs SQL as job runs of an EMR Serverless
// application.
package emrserverless

import (
	"context"
	"flag"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/emrserverless"
	"github.com/aws/aws-sdk-go/service/emrserverless/emrserverlessiface"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/util/awsutil"
)

// ResultField is the results index field holding the job run id.
const ResultField = "jobRunId.keyword"

const javaHome = "/usr/lib/jvm/java-17-amazon-corretto.x86_64/"

// Config configures the EMR Serverless backend.
type Config struct {
	ApplicationID    string           `yaml:"application_id"`
	ExecutionRoleARN string           `yaml:"execution_role_arn"`
	JobName          string           `yaml:"job_name"`
	DriverCores      int              `yaml:"driver_cores"`
	DriverMemory     string           `yaml:"driver_memory"`
	ExecutorCores    int              `yaml:"executor_cores"`
	ExecutorMemory   string           `yaml:"executor_memory"`
	AWS              awsutil.Config   `yaml:"aws"`
	Spark            jobs.SparkConfig `yaml:"spark"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.ApplicationID, prefix+"emr-serverless.application-id", "", "EMR Serverless application running the jobs.")
	f.StringVar(&cfg.ExecutionRoleARN, prefix+"emr-serverless.execution-role-arn", "", "IAM role the job runs assume.")
	f.StringVar(&cfg.JobName, prefix+"emr-serverless.job-name", "sqlbridge", "Name given to job runs.")
	f.IntVar(&cfg.DriverCores, prefix+"emr-serverless.driver-cores", 1, "Spark driver cores.")
	f.StringVar(&cfg.DriverMemory, prefix+"emr-serverless.driver-memory", "1g", "Spark driver memory.")
	f.IntVar(&cfg.ExecutorCores, prefix+"emr-serverless.executor-cores", 2, "Spark executor cores.")
	f.StringVar(&cfg.ExecutorMemory, prefix+"emr-serverless.executor-memory", "4g", "Spark executor memory.")
	cfg.AWS.RegisterFlagsWithPrefix(prefix+"emr-serverless.", f)
	cfg.Spark.RegisterFlagsWithPrefix(prefix+"emr-serverless.", f)
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.ApplicationID == "" || cfg.ExecutionRoleARN == "" {
		return errors.New("emr serverless application id and execution role arn are required")
	}
	if err := cfg.AWS.Validate(); err != nil {
		return err
	}
	return cfg.Spark.Validate()
}

var states = map[string]querymodel.JobState{
	"SUBMITTED":  querymodel.JobSubmitted,
	"PENDING":    querymodel.JobSubmitted,
	"SCHEDULED":  querymodel.JobSubmitted,
	"QUEUED":     querymodel.JobSubmitted,
	"RUNNING":    querymodel.JobRunning,
	"CANCELLING": querymodel.JobRunning,
	"SUCCESS":    querymodel.JobSuccess,
	"FAILED":     querymodel.JobFailed,
	"CANCELLED":  querymodel.JobCancelled,
}

// Backend implements jobs.Backend on EMR Serverless job runs.
type Backend struct {
	cfg     Config
	api     emrserverlessiface.EMRServerlessAPI
	tokenFn func() string
}

// New builds an EMR Serverless client from cfg.
func New(cfg Config) (*Backend, error) {
	sess, err := awsutil.NewSession(cfg.AWS, nil)
	if err != nil {
		return nil, err
	}
	return NewWithAPI(cfg, emrserverless.New(sess)), nil
}

// NewWithAPI returns a Backend using api.
func NewWithAPI(cfg Config, api emrserverlessiface.EMRServerlessAPI) *Backend {
	return &Backend{cfg: cfg, api: api, tokenFn: uuid.NewString}
}

// SubmitParameters returns the spark-submit parameters of a job run.
func (b *Backend) SubmitParameters() string {
	s := b.cfg.Spark
	params := []string{"--class " + s.Driver()}
	conf := []string{
		"spark.driver.cores=" + strconv.Itoa(b.cfg.DriverCores),
		"spark.driver.memory=" + b.cfg.DriverMemory,
		"spark.executor.cores=" + strconv.Itoa(b.cfg.ExecutorCores),
		"spark.executor.memory=" + b.cfg.ExecutorMemory,
	}
	if jars := s.Jars(); len(jars) > 0 {
		conf = append(conf, "spark.jars="+strings.Join(jars, ","))
	}
	conf = append(conf, s.SinkConf()...)
	conf = append(conf,
		"spark.emr-serverless.driverEnv.JAVA_HOME="+javaHome,
		"spark.executorEnv.JAVA_HOME="+javaHome,
		"spark.hadoop.hive.metastore.client.factory.class=com.amazonaws.glue.catalog.metastore.AWSGlueDataCatalogHiveClientFactory",
	)
	for _, c := range conf {
		params = append(params, "--conf "+c)
	}
	return strings.Join(params, " ")
}

func (b *Backend) Submit(ctx context.Context, query string) (jobs.Submission, error) {
	out, err := b.api.StartJobRunWithContext(ctx, &emrserverless.StartJobRunInput{
		ApplicationId:    aws.String(b.cfg.ApplicationID),
		ExecutionRoleArn: aws.String(b.cfg.ExecutionRoleARN),
		ClientToken:      aws.String(b.tokenFn()),
		Name:             aws.String(b.cfg.JobName),
		JobDriver: &emrserverless.JobDriver{
			SparkSubmit: &emrserverless.SparkSubmit{
				EntryPoint:            aws.String(b.cfg.Spark.ApplicationJar),
				EntryPointArguments:   aws.StringSlice([]string{query, b.cfg.Spark.Index()}),
				SparkSubmitParameters: aws.String(b.SubmitParameters()),
			},
		},
	})
	if err != nil {
		return jobs.Submission{}, errors.Wrap(err, "starting job run")
	}
	id := aws.StringValue(out.JobRunId)
	return jobs.Submission{ID: id, ResultKey: id}, nil
}

func (b *Backend) Poll(ctx context.Context, id string) (jobs.Status, error) {
	out, err := b.api.GetJobRunWithContext(ctx, &emrserverless.GetJobRunInput{
		ApplicationId: aws.String(b.cfg.ApplicationID),
		JobRunId:      aws.String(id),
	})
	if err != nil {
		return jobs.Status{}, errors.Wrapf(err, "getting job run %s", id)
	}
	if out.JobRun == nil {
		return jobs.Status{}, errors.Errorf("job run %s not returned", id)
	}
	raw := aws.StringValue(out.JobRun.State)
	state, ok := states[raw]
	if !ok {
		return jobs.Status{}, errors.Errorf("unknown job run state %q", raw)
	}
	return jobs.Status{State: state, Reason: aws.StringValue(out.JobRun.StateDetails)}, nil
}

func (b *Backend) Cancel(ctx context.Context, id string) error {
	_, err := b.api.CancelJobRunWithContext(ctx, &emrserverless.CancelJobRunInput{
		ApplicationId: aws.String(b.cfg.ApplicationID),
		JobRunId:      aws.String(id),
	})
	return errors.Wrapf(err, "cancelling job run %s", id)
}
