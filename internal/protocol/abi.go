package protocol

import "github.com/Fantasim/rektrescue/internal/tokens"

const lendingPoolJSON = `[{"inputs":[{"name":"user","type":"address"}],"name":"getUserAccountData","outputs":[
{"name":"totalCollateralETH","type":"uint256"},
{"name":"totalDebtETH","type":"uint256"},
{"name":"availableBorrowsETH","type":"uint256"},
{"name":"currentLiquidationThreshold","type":"uint256"},
{"name":"ltv","type":"uint256"},
{"name":"healthFactor","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const moneyMarketJSON = `[{"inputs":[{"name":"account","type":"address"}],"name":"getAccountLiquidity","outputs":[
{"name":"err","type":"uint256"},
{"name":"liquidity","type":"uint256"},
{"name":"shortfall","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const liquidityManagerJSON = `[{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[
{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var (
	lendingPoolABI      = tokens.MustParseABI(lendingPoolJSON)
	moneyMarketABI      = tokens.MustParseABI(moneyMarketJSON)
	liquidityManagerABI = tokens.MustParseABI(liquidityManagerJSON)
)
