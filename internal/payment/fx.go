package payment

import (
	paymentdomain "github.com/smallbiznis/computeledger/internal/payment/domain"
	"github.com/smallbiznis/computeledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/computeledger/internal/payment/service"
	"go.uber.org/fx"
)

// Module wires payment intake: the event inbox and the service that turns
// settled payments and refunds into ledger transactions.
var Module = fx.Module("payment",
	fx.Provide(
		repository.NewEventStore,
		paymentservice.NewService,
		func(svc *paymentservice.Service) paymentdomain.Service { return svc },
	),
)
