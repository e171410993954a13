/*
Package workers sizes goroutine pools from the CPU quota the process
actually has.

runtime.NumCPU reports host CPUs, which in a container with a CPU limit is
far more than the process may use. GOMAXPROCS follows the cgroup limit on
Go 1.19+, so pool sizes are derived from it instead.

	n := workers.Count(0.5, 0) // one ffmpeg process per two CPUs

x264 is itself multi-threaded, which is why the transcoder default uses a
multiplier below one. Setting TRANSCODE_WORKERS in the environment overrides
Count.
*/
package workers
