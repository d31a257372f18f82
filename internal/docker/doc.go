// Package docker runs build jobs inside containers and tracks them with
// Docker labels.
//
// It wraps the Docker Engine SDK client for daemon access and socket
// detection, and shells out to the docker CLI where the SDK workflow
// would be heavier than the command users already know (streaming an
// exec, for example). Every container this tool creates carries
// "stagehand." labels, which are the only persistence mechanism: the
// clean command finds leftover containers purely by label.
package docker
