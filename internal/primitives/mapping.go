package primitives

// metricBinding names the provider-side namespace and metric for a logical
// dimension on one resource type.
type metricBinding struct {
	Namespace string
	Metric    string
}

// metricMappings resolves logical dimensions ("cpu", "errors") onto the
// metric names each resource type actually publishes. The table belongs to
// the probes: planners bind logical names and never see this.
var metricMappings = map[string]map[string]metricBinding{
	"ec2": {
		"cpu":     {Namespace: "AWS/EC2", Metric: "CPUUtilization"},
		"memory":  {Namespace: "CWAgent", Metric: "mem_used_percent"},
		"disk":    {Namespace: "CWAgent", Metric: "disk_used_percent"},
		"network": {Namespace: "AWS/EC2", Metric: "NetworkIn"},
	},
	"rds": {
		"cpu":         {Namespace: "AWS/RDS", Metric: "CPUUtilization"},
		"connections": {Namespace: "AWS/RDS", Metric: "DatabaseConnections"},
		"memory":      {Namespace: "AWS/RDS", Metric: "FreeableMemory"},
		"iops":        {Namespace: "AWS/RDS", Metric: "ReadIOPS"},
	},
	"lambda": {
		"duration":    {Namespace: "AWS/Lambda", Metric: "Duration"},
		"errors":      {Namespace: "AWS/Lambda", Metric: "Errors"},
		"throttles":   {Namespace: "AWS/Lambda", Metric: "Throttles"},
		"concurrency": {Namespace: "AWS/Lambda", Metric: "ConcurrentExecutions"},
	},
	"dynamodb": {
		"read":      {Namespace: "AWS/DynamoDB", Metric: "ConsumedReadCapacityUnits"},
		"write":     {Namespace: "AWS/DynamoDB", Metric: "ConsumedWriteCapacityUnits"},
		"throttles": {Namespace: "AWS/DynamoDB", Metric: "UserErrors"},
	},
}

// resolveMetric maps a logical metric onto the provider metric for the
// resource type. Unknown combinations pass the logical name through under
// the generic namespace so new resource types keep working.
func resolveMetric(resourceType, logical string) metricBinding {
	if byType, ok := metricMappings[resourceType]; ok {
		if binding, ok := byType[logical]; ok {
			return binding
		}
	}
	return metricBinding{Namespace: "AWS/CloudWatch", Metric: logical}
}
