package redis

const (
	// KeyPrefixCluster prefixes the JSON view of one cluster.
	KeyPrefixCluster = "balmgr:cluster:"
	// KeyPrefixClusterSet prefixes the set of cluster names of one endpoint.
	KeyPrefixClusterSet = "balmgr:clusters:"
)

// ClusterKey returns the key holding cluster of endpoint.
func ClusterKey(endpoint, cluster string) string {
	return KeyPrefixCluster + endpoint + ":" + cluster
}

// ClusterSetKey returns the key of the set of cluster names published for endpoint.
func ClusterSetKey(endpoint string) string {
	return KeyPrefixClusterSet + endpoint
}
