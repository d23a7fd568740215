package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"transit-classifier-service/internal/config"
	"transit-classifier-service/internal/core/domain"
	ports "transit-classifier-service/internal/core/ports/output"
)

const (
	labelManagedBy   = "app.kubernetes.io/managed-by"
	labelModelFamily = "transit-classifier/model-family"
	managerName      = "transit-classifier-service"
)

var errJobFailed = errors.New("training job failed")

type kubeTrainer struct {
	client    kubernetes.Interface
	results   ports.ObjectReader
	namespace string
	image     string
	bucket    string
	poll      time.Duration
}

// NewKubeTrainer runs training as Kubernetes Jobs. The job writes its result
// JSON to object storage, where results reads it back.
func NewKubeTrainer(cfg *config.TrainerConfig, results ports.ObjectReader) (ports.TrainingEngine, error) {
	var restCfg *rest.Config
	var err error

	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else if cfg.KubeConfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	} else {
		home, _ := os.UserHomeDir()
		kubeconfig := filepath.Join(home, ".kube", "config")
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create k8s client: %w", err)
	}

	return newKubeTrainer(client, results, cfg), nil
}

func newKubeTrainer(client kubernetes.Interface, results ports.ObjectReader, cfg *config.TrainerConfig) *kubeTrainer {
	ns := cfg.Namespace
	if ns == "" {
		ns = "model-training"
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &kubeTrainer{
		client:    client,
		results:   results,
		namespace: ns,
		image:     cfg.Image,
		bucket:    cfg.ResultBucket,
		poll:      poll,
	}
}

func (k *kubeTrainer) IsAvailable() bool {
	return k.client != nil && k.results != nil && k.image != ""
}

func (k *kubeTrainer) Train(ctx context.Context, params domain.Hyperparameters) (*ports.TrainingResult, error) {
	job, key, err := k.buildJob(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTraining, err)
	}

	jobs := k.client.BatchV1().Jobs(k.namespace)
	created, err := jobs.Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: create job: %v", domain.ErrTrainerUnavailable, err)
	}
	logger := log.WithFields(log.Fields{"job": created.Name, "namespace": k.namespace, "family": params.Family})
	logger.Info("training job submitted")

	err = wait.PollUntilContextCancel(ctx, k.poll, false, func(ctx context.Context) (bool, error) {
		j, err := jobs.Get(ctx, created.Name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		if j.Status.Failed > 0 {
			return false, errJobFailed
		}
		return j.Status.Succeeded > 0, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			k.cancelJob(created.Name)
		}
		logger.WithError(err).Warn("training job did not succeed")
		return nil, fmt.Errorf("%w: job %s: %v", domain.ErrTraining, created.Name, err)
	}

	data, err := k.results.ReadObject(ctx, k.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: read result %s/%s: %v", domain.ErrTraining, k.bucket, key, err)
	}
	logger.Info("training job succeeded")
	return decodeResult(bytes.NewReader(data))
}

func (k *kubeTrainer) buildJob(params domain.Hyperparameters) (*batchv1.Job, string, error) {
	encoded, err := json.Marshal(params.EngineParams())
	if err != nil {
		return nil, "", fmt.Errorf("encode params: %w", err)
	}

	engine := params.Family.EngineName()
	name := "train-" + strings.ReplaceAll(engine, "_", "-") + "-" + uuid.NewString()[:8]
	key := "results/" + name + ".json"

	backoff := int32(0)
	ttl := int32(3600)

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: k.namespace,
			Labels: map[string]string{
				labelManagedBy:   managerName,
				labelModelFamily: string(params.Family),
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoff,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{labelManagedBy: managerName},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:  "trainer",
						Image: k.image,
						Env: []corev1.EnvVar{
							{Name: "MODEL_TYPE", Value: engine},
							{Name: "MODEL_PARAMS", Value: string(encoded)},
							{Name: "RESULT_BUCKET", Value: k.bucket},
							{Name: "RESULT_KEY", Value: key},
						},
					}},
				},
			},
		},
	}
	return job, key, nil
}

// cancelJob deletes an abandoned job and its pods.
func (k *kubeTrainer) cancelJob(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policy := metav1.DeletePropagationBackground
	err := k.client.BatchV1().Jobs(k.namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil {
		log.WithError(err).WithField("job", name).Warn("failed to delete training job")
	}
}

// Ensure interface compliance
var _ ports.TrainingEngine = (*kubeTrainer)(nil)
