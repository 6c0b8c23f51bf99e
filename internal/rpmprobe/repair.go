package rpmprobe

import "github.com/blackwell-systems/dcrpm/internal/procexec"

// RecoverDB runs `db_recover -v -h <dbPath>`, the BDB log-based recovery
// that rpmutil.py's recover_db shells out to.
func (p *Prober) RecoverDB() *procexec.CommandResult {
	argv := []string{p.Cfg.RecoverBin, "-v", "-h", p.Cfg.DBPath}
	return p.Supervisor.Run(p.ctx(), argv, nil, p.Cfg.TimeoutRecover, nil)
}

// RebuildDB runs `rpm --dbpath=<dbPath> --rebuilddb`, the destructive
// full-rebuild repair. Timeout defaults to 600s per Table A.
func (p *Prober) RebuildDB() *procexec.CommandResult {
	argv := []string{p.Cfg.RPMBin, "--dbpath", p.Cfg.DBPath, "--rebuilddb"}
	return p.Supervisor.Run(p.ctx(), argv, nil, p.Cfg.TimeoutRebuild, nil)
}

// CleanYumTransactions runs `yum-complete-transaction --cleanup-only`,
// matching rpmutil.py's clean_yum_transactions.
func (p *Prober) CleanYumTransactions() *procexec.CommandResult {
	argv := []string{p.Cfg.YumBin, "--cleanup-only"}
	return p.Supervisor.Run(p.ctx(), argv, nil, p.Cfg.TimeoutYum, nil)
}
