package di

import (
	"github.com/pwilliams272/kaya-deployer/internal/dao/deploydao"
	"github.com/pwilliams272/kaya-deployer/internal/deployer"
	"github.com/pwilliams272/kaya-deployer/internal/services"
)

// ProvideDeployer wires the publish pipeline from its concrete services.
func ProvideDeployer(
	functions *services.FunctionService,
	artifacts *services.ArtifactStore,
	dao *deploydao.DAO,
	config *services.Config,
	env string,
) *deployer.Deployer {
	return deployer.New(functions, artifacts, dao, config, env)
}
