// Package proc samples the CPU and memory usage of a process tree from
// /proc, for workloads that fork helpers or worker processes.
//
// The tree is the root pid plus every descendant reachable through
// /proc/<pid>/task/*/children, re-walked on each sample so that processes
// started during a window are counted.
//
// Utilization definitions
//
//	CPU% = Σpids Δ(utime+stime) / CLK_TCK / interval * 100
//	MEM% = Σpids RSS / total physical memory * 100
//
// CPU% follows the per-process convention where 100 means one fully busy
// core, so a multi-threaded tree may exceed 100. Pids that exit during the
// window contribute nothing for it.
//
// Per-pid readers (ReadProcStat, ReadProcRSS, ReadProcChildren) are usable on
// their own. Stat and RSS go through github.com/prometheus/procfs; RSS
// prefers smaps_rollup and falls back to the rss field of stat.
package proc
