package nfse

import "github.com/zapflow/nfse-api/internal/domain/entity"

// Result desfecho de uma ação sobre a NFS-e. Falhas terminais voltam aqui com Success=false;
// falhas transitórias voltam como erro para a fila reprocessar.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	Number    string `json:"number,omitempty"`
	Status    string `json:"status"`
}

func success(inv *entity.TaxInvoice) *Result {
	return &Result{Success: true, AccessKey: inv.Protocol, Number: inv.Number, Status: inv.Status}
}

func failure(status, msg string) *Result {
	return &Result{Success: false, Error: msg, Status: status}
}
