package source

import (
	"context"
	"fmt"
	"sort"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/thavlik/tsmeta/tsfile"
)

// ConfigMapSource reads TS files stored as the data entries of a
// ConfigMap. Each entry key is treated as a file name.
type ConfigMapSource struct {
	Client    kubernetes.Interface
	Namespace string
}

// Load parses every .txt or .ts entry of the named ConfigMap, in key
// order. Entries that cannot be parsed are returned with Err set.
func (s *ConfigMapSource) Load(ctx context.Context, name string) ([]*Result, error) {
	cm, err := s.Client.CoreV1().ConfigMaps(s.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("configmap %s/%s: %w", s.Namespace, name, err)
	}
	keys := make([]string, 0, len(cm.Data))
	for k := range cm.Data {
		lower := strings.ToLower(k)
		if strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".ts") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	results := make([]*Result, 0, len(keys))
	for _, k := range keys {
		rec, err := tsfile.ParseString(cm.Data[k], tsfile.SourceName(k))
		results = append(results, &Result{
			Path:   fmt.Sprintf("configmap://%s/%s/%s", s.Namespace, name, k),
			Record: rec,
			Err:    err,
		})
	}
	return results, nil
}
