// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gcs

import "github.com/prometheus/client_golang/prometheus"

const gcsMetricNamePrefix = "database_blob_"

type blobMetrics struct {
	opsTotal   prometheus.Counter
	bytesTotal prometheus.Counter
}

func (d *BlobStoreGCS) registerBlobMetrics() {
	opsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: gcsMetricNamePrefix + "ops_total",
			Help: "Total number of GCS blob operations",
		},
	)
	bytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: gcsMetricNamePrefix + "bytes_total",
			Help: "Total bytes read/written for GCS blob operations",
		},
	)

	d.promRegistry.MustRegister(opsTotal, bytesTotal)
	d.metrics = &blobMetrics{
		opsTotal:   opsTotal,
		bytesTotal: bytesTotal,
	}
}

// countOp records a completed blob operation and the bytes it moved.
func (d *BlobStoreGCS) countOp(byteCount int) {
	if d.metrics == nil {
		return
	}
	d.metrics.opsTotal.Inc()
	d.metrics.bytesTotal.Add(float64(byteCount))
}
